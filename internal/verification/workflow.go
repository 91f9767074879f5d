package verification

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/luxentry/lux-entry-bot/internal/receipt"
	"github.com/luxentry/lux-entry-bot/types"
)

// TextExtractor is the external OCR capability. An empty result with a nil
// error means the image contained no recognizable text.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// FileFetcher resolves a transport file id to raw bytes plus a durable
// reference for the fetched file.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileID string) (data []byte, ref string, err error)
}

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeNoText   Outcome = "no_text"
)

type Result struct {
	Outcome Outcome
	Missing []receipt.Signal
	Member  *types.VipUser
	Creator *types.CreatorConfig
}

// Workflow runs one screenshot through fetch, OCR, the receipt checklist and,
// on acceptance, the membership extension. Rejections and missing text leave
// the membership untouched; any I/O failure aborts without partial writes.
type Workflow struct {
	files    FileFetcher
	ocr      TextExtractor
	members  types.MembershipStore
	creators types.CreatorDirectory
	locks    keyedMutex
}

func NewWorkflow(files FileFetcher, ocr TextExtractor, members types.MembershipStore, creators types.CreatorDirectory) *Workflow {
	return &Workflow{
		files:    files,
		ocr:      ocr,
		members:  members,
		creators: creators,
	}
}

func (w *Workflow) Verify(ctx context.Context, telegramID int64, creatorID, fileID string) (*Result, error) {
	// Serializes concurrent submissions per membership, so two screenshots
	// in quick succession cannot interleave the read-modify-write.
	unlock := w.locks.lock(fmt.Sprintf("%d:%s", telegramID, creatorID))
	defer unlock()

	creator, err := w.creators.GetCreator(creatorID)
	if err != nil {
		return nil, fmt.Errorf("load creator %s: %w", creatorID, err)
	}

	data, ref, err := w.files.FetchFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("fetch screenshot: %w", err)
	}

	text, err := w.ocr.ExtractText(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		w.recordAttempt(telegramID, creatorID, ref, OutcomeNoText)
		return &Result{Outcome: OutcomeNoText, Creator: creator}, nil
	}

	missing := receipt.Missing(text, receipt.Expectation{
		Amount:    creator.Price,
		Recipient: creator.PaymentRecipient,
	})
	if len(missing) > 0 {
		w.recordAttempt(telegramID, creatorID, ref, OutcomeRejected)
		return &Result{Outcome: OutcomeRejected, Missing: missing, Creator: creator}, nil
	}

	member, err := w.members.ActivateOrExtend(telegramID, creatorID, creator.Days(), ref)
	if err != nil {
		return nil, fmt.Errorf("extend membership: %w", err)
	}
	w.recordAttempt(telegramID, creatorID, ref, OutcomeAccepted)

	return &Result{Outcome: OutcomeAccepted, Member: member, Creator: creator}, nil
}

func (w *Workflow) recordAttempt(telegramID int64, creatorID, ref string, outcome Outcome) {
	err := w.members.RecordVerification(types.VerificationAttempt{
		TelegramID: telegramID,
		CreatorID:  creatorID,
		FileRef:    ref,
		Outcome:    string(outcome),
	})
	if err != nil {
		log.Printf("Failed to record verification attempt user=%d creator=%s: %v", telegramID, creatorID, err)
	}
}
