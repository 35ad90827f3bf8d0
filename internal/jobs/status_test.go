package jobs

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"ottie/internal/model"
)

func TestCanTransition(t *testing.T) {
	ok := [][2]model.Status{
		{model.StatusQueued, model.StatusScraping},
		{model.StatusScraping, model.StatusPending},
		{model.StatusPending, model.StatusCompleted},
		{model.StatusQueued, model.StatusError},
		{model.StatusScraping, model.StatusError},
		{model.StatusPending, model.StatusError},
	}
	for _, tr := range ok {
		if !CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s to be allowed", tr[0], tr[1])
		}
	}

	bad := [][2]model.Status{
		{model.StatusCompleted, model.StatusScraping},
		{model.StatusPending, model.StatusQueued},
		{model.StatusScraping, model.StatusScraping},
		{model.StatusError, model.StatusPending},
		{model.StatusCompleted, model.StatusError},
		{model.StatusError, model.StatusError},
		{"bogus", model.StatusScraping},
	}
	for _, tr := range bad {
		if CanTransition(tr[0], tr[1]) {
			t.Fatalf("expected %s -> %s to be rejected", tr[0], tr[1])
		}
	}
}

func TestCanResume(t *testing.T) {
	for _, from := range []model.Status{model.StatusError, model.StatusCompleted, model.StatusPending} {
		if !CanResume(from, model.StatusPending) {
			t.Fatalf("expected resume from %s", from)
		}
	}
	for _, from := range []model.Status{model.StatusQueued, model.StatusScraping} {
		if CanResume(from, model.StatusPending) {
			t.Fatalf("expected no resume from %s", from)
		}
	}
	if CanResume(model.StatusError, model.StatusCompleted) {
		t.Fatalf("resume only targets pending")
	}
}

func TestAllowedFrom(t *testing.T) {
	from := AllowedFrom(model.StatusError)
	if len(from) != 3 {
		t.Fatalf("AllowedFrom(error) = %v, want queued/scraping/pending", from)
	}
	if got := AllowedFrom(model.StatusQueued); len(got) != 0 {
		t.Fatalf("nothing transitions into queued, got %v", got)
	}
}

func TestStatusNeverMovesBackward(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("applied transitions are monotonic or error", prop.ForAll(
		func(targets []int) bool {
			cur := model.StatusQueued
			for _, idx := range targets {
				next := allStatuses[idx]
				if !CanTransition(cur, next) {
					continue
				}
				if next != model.StatusError && rank[next] <= rank[cur] {
					return false
				}
				if cur == model.StatusError {
					return false
				}
				cur = next
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allStatuses)-1)),
	))

	properties.TestingRun(t)
}
