package run

import "sync"

// Style 是 Msg 的展示风格提示；Sink 实现可以忽略。
const (
	StyleDark  = "dark"
	StyleInfo  = "info"
	StyleError = "error"
)

// Separator 在多条目、非 quiet 时分隔各条目的输出块。
const Separator = "======================================================================"

// Sink 是面向用户的输出（控制台）。核心流程从不直接写终端。
//
// 实现必须并发安全；但 Manager 保证同一时刻只有收集 goroutine 在写它。
type Sink interface {
	Info(msg string)
	Warn(msg string)
	Msg(text, style string)
	BeQuiet() bool
}

type lineKind int

const (
	lineInfo lineKind = iota
	lineWarn
	lineMsg
)

type line struct {
	kind  lineKind
	text  string
	style string
}

// itemSink 缓存单个条目的输出，条目完成后作为一个整体 flush 到真正的 Sink，
// 保证不同条目的输出块不会交错。
type itemSink struct {
	quiet bool

	mu    sync.Mutex
	lines []line
}

func newItemSink(quiet bool) *itemSink { return &itemSink{quiet: quiet} }

func (s *itemSink) Info(msg string)        { s.add(line{kind: lineInfo, text: msg}) }
func (s *itemSink) Warn(msg string)        { s.add(line{kind: lineWarn, text: msg}) }
func (s *itemSink) Msg(text, style string) { s.add(line{kind: lineMsg, text: text, style: style}) }
func (s *itemSink) BeQuiet() bool          { return s.quiet }

func (s *itemSink) add(l line) {
	s.mu.Lock()
	s.lines = append(s.lines, l)
	s.mu.Unlock()
}

func (s *itemSink) flush(to Sink) {
	s.mu.Lock()
	lines := s.lines
	s.lines = nil
	s.mu.Unlock()

	for _, l := range lines {
		switch l.kind {
		case lineWarn:
			to.Warn(l.text)
		case lineMsg:
			to.Msg(l.text, l.style)
		default:
			to.Info(l.text)
		}
	}
}

// DiscardSink 丢弃所有输出（测试/库调用时使用）。
type DiscardSink struct{}

func (DiscardSink) Info(string)        {}
func (DiscardSink) Warn(string)        {}
func (DiscardSink) Msg(string, string) {}
func (DiscardSink) BeQuiet() bool      { return true }
