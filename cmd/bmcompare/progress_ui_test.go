package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bestmoney-nz/bmcompare/internal/config"
	"github.com/bestmoney-nz/bmcompare/internal/domain"
)

func TestEmptyBuckets(t *testing.T) {
	got := emptyBuckets([]domain.BucketResult{
		{Dimension: "credit", Value: "poor", Visible: 0},
		{Dimension: "credit", Value: "good", Visible: 2},
		{Dimension: "amount", Value: "0-5000", Visible: 0},
	})
	want := []string{"credit=poor", "amount=0-5000"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
}

func TestProgressUI_PrintsPhasesAndItems(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)

	p.OnStart(config.EffectiveConfig{Path: "/site", Concurrency: 2, Write: true, LogLevel: "info", LogFormat: "console"})
	p.OnPhaseDone("scan", map[string]any{"pages": 2}, 10*time.Millisecond)
	p.OnPhaseDone("exec", map[string]any{"workers": 2, "total_items": 2}, 0)
	p.OnItemDone(1, 2, "personal-loans/index.html", domain.PageResult{
		Status: domain.StatusFilterable,
		Cards:  3,
		Buckets: []domain.BucketResult{
			{Dimension: "credit", Value: "poor", Visible: 0},
			{Dimension: "credit", Value: "good", Visible: 2},
		},
	}, time.Second)
	p.OnItemDone(2, 2, "about/index.html", domain.PageResult{Status: domain.StatusInert}, 0)

	out := buf.String()
	for _, want := range []string{
		"bmcompare audit (write)",
		"concurrency: 2",
		"扫描: pages=2",
		"执行: workers=2 total_items=2",
		"[1/2] personal-loans/index.html OK cards=3 buckets=2 empty=credit=poor (1.0s)",
		"[2/2] about/index.html INERT",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
	if p.tickerStarted {
		t.Fatalf("全部完成后 ticker 应已停止")
	}
}

func TestProgressUI_FailLine(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressUI(&buf)
	p.OnItemDone(1, 1, "broken.html", domain.PageResult{
		Status:    domain.StatusFailed,
		ErrorCode: domain.ErrCodeReadFailed,
		ErrorMsg:  "permission denied",
	}, 0)
	if !strings.Contains(buf.String(), "broken.html FAIL read_failed: permission denied") {
		t.Fatalf("失败行格式不符：%q", buf.String())
	}
}

func TestIntFieldAndFormatting(t *testing.T) {
	if got := intField(map[string]any{"a": int64(3)}, "a"); got != 3 {
		t.Fatalf("期望 3，实际 %d", got)
	}
	if got := intField(nil, "a"); got != 0 {
		t.Fatalf("期望 0，实际 %d", got)
	}
	if got := formatElapsed(3725 * time.Second); got != "01:02:05" {
		t.Fatalf("期望 01:02:05，实际 %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Fatalf("期望 abc...，实际 %q", got)
	}
	if got := formatStringListJSON(nil); got != "[]" {
		t.Fatalf("期望 []，实际 %q", got)
	}
}
