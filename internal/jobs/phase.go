package jobs

import "ottie/internal/model"

// Phase is the fine-grained progress indicator shown to clients. It is
// never stored; DerivePhase computes it from a cold read of the record.
type Phase string

const (
	PhaseQueue      Phase = "queue"
	PhaseScraping   Phase = "scraping"
	PhaseGallery    Phase = "gallery"
	PhaseCall1      Phase = "call1"
	PhaseCall2      Phase = "call2"
	PhaseAssembling Phase = "assembling"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// Phases lists every phase value in pipeline order.
var Phases = []Phase{
	PhaseQueue,
	PhaseScraping,
	PhaseGallery,
	PhaseCall1,
	PhaseCall2,
	PhaseAssembling,
	PhaseCompleted,
	PhaseError,
}

// PhaseInput is everything DerivePhase looks at.
type PhaseInput struct {
	Status model.Status
	// QueuePosition is the 1-based rank among enqueued jobs, 0 when the
	// job is not in the queue.
	QueuePosition int
	Processing    bool

	GalleryHTMLPresent bool
	GalleryExtracted   bool

	Call1Started   bool
	Call1Completed bool
	Call2Started   bool
	Call2Completed bool
}

// PhaseInputFor builds a PhaseInput from a stored record plus the queue
// facts the status endpoint looked up.
func PhaseInputFor(p *model.Preview, queuePosition int, processing bool) PhaseInput {
	md := p.Metadata()
	return PhaseInput{
		Status:             p.Status,
		QueuePosition:      queuePosition,
		Processing:         processing,
		GalleryHTMLPresent: p.GalleryRawHTML != "",
		GalleryExtracted:   p.GalleryImageURLs != nil,
		Call1Started:       p.Call1StartedAt != nil || md.Call1StartedAt != nil,
		Call1Completed:     md.Call1CompletedAt != nil,
		Call2Started:       p.Call2StartedAt != nil || md.Call2StartedAt != nil,
		Call2Completed:     md.Call2CompletedAt != nil,
	}
}

// DerivePhase maps a record snapshot to its phase. The first matching
// rule wins.
func DerivePhase(in PhaseInput) Phase {
	switch in.Status {
	case model.StatusQueued:
		if !in.Processing && in.QueuePosition > 0 {
			return PhaseQueue
		}
		// Claimed by the worker but not yet marked scraping.
		if in.Processing {
			return PhaseScraping
		}
		// Dropped from the queue; the sweep will re-enqueue it.
		return PhaseQueue
	case model.StatusScraping:
		if in.GalleryHTMLPresent && !in.GalleryExtracted {
			return PhaseGallery
		}
		return PhaseScraping
	case model.StatusPending:
		switch {
		case in.Call2Started && !in.Call2Completed:
			return PhaseCall2
		case in.Call2Completed:
			return PhaseAssembling
		case in.Call1Started && !in.Call1Completed:
			return PhaseCall1
		case in.Call1Completed:
			return PhaseCall2
		default:
			return PhaseCall1
		}
	case model.StatusCompleted:
		return PhaseCompleted
	default:
		return PhaseError
	}
}
