package transport

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DryRunSender is the transport used when no gateway is configured. Every
// delivery succeeds and is only logged, which keeps rehearsal environments
// safe by construction.
type DryRunSender struct{}

func NewDryRunSender() *DryRunSender {
	return &DryRunSender{}
}

func (s *DryRunSender) SendText(ctx context.Context, target string, content string) error {
	preview := content
	if len(preview) > 80 {
		preview = preview[:80] + "…"
	}
	logrus.Infof("[TRANSPORT] dry-run send to %s: %q", target, preview)
	return nil
}
