package pipeline

import (
	"testing"

	"github.com/vox-cua/agent/internal/desktop"
)

func TestRepeatClickDetector_WarnsAfterTwoClicksInWindow(t *testing.T) {
	d := NewRepeatClickDetector()
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 100, Y: 100})
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 110, Y: 95})
	if !d.CheckAndClear() {
		t.Fatal("expected repeat-click warning")
	}
	if d.CheckAndClear() {
		t.Fatal("expected warning to fire only once")
	}
}

func TestRepeatClickDetector_NoWarnBeyondWindow(t *testing.T) {
	d := NewRepeatClickDetector()
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 0, Y: 0})
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 500, Y: 500})
	if d.CheckAndClear() {
		t.Fatal("expected no warning, clicks are far apart")
	}
}

func TestRepeatClickDetector_TypingResetsRecord(t *testing.T) {
	d := NewRepeatClickDetector()
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 10, Y: 10})
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionType, Text: "hello"})
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 12, Y: 12})
	if d.CheckAndClear() {
		t.Fatal("expected record cleared by typing, only one click remains")
	}
}

func TestRepeatClickDetector_ScrollAndMouseMoveIgnored(t *testing.T) {
	d := NewRepeatClickDetector()
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 10, Y: 10})
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionScroll})
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionMouseMove, X: 900, Y: 900})
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 11, Y: 11})
	if !d.CheckAndClear() {
		t.Fatal("expected warning, scroll/mouse_move should not reset or count")
	}
}

func TestRepeatClickDetector_SingleClickDoesNotWarn(t *testing.T) {
	d := NewRepeatClickDetector()
	d.Observe(desktop.ComputerAction{Kind: desktop.ActionLeftClick, X: 10, Y: 10})
	if d.CheckAndClear() {
		t.Fatal("expected no warning for a single click")
	}
}
