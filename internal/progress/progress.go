package progress

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/1F47E/go-tilereel/internal/logger"
)

// Reporter counts outcomes and reports them every n-th outcome.
// A bar is drawn on stderr when it is a terminal, otherwise progress goes to the log.
// Not safe for concurrent use, feed it from the collecting goroutine.
type Reporter struct {
	desc   string
	total  int64
	every  int64
	done   int64
	failed int64
	bar    *progressbar.ProgressBar
	log    *logrus.Entry
}

func New(desc string, total int64, every int) *Reporter {
	if every < 1 {
		every = 1
	}
	r := &Reporter{
		desc:  desc,
		total: total,
		every: int64(every),
		log:   logger.Log.WithField("scope", "progress"),
	}
	if term.IsTerminal(int(os.Stderr.Fd())) && total > 0 {
		r.bar = progressCreate(total, desc)
	}
	return r
}

// Add records one outcome.
func (r *Reporter) Add(ok bool) {
	r.done++
	if !ok {
		r.failed++
	}
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
	if r.done%r.every == 0 || r.done == r.total {
		entry := r.log.WithField("failed", r.failed)
		if r.bar != nil {
			entry.Debugf("%s %d/%d", r.desc, r.done, r.total)
		} else {
			entry.Infof("%s %d/%d", r.desc, r.done, r.total)
		}
	}
}

func (r *Reporter) Done() int64   { return r.done }
func (r *Reporter) Failed() int64 { return r.failed }

func (r *Reporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
		_ = r.bar.Clear()
	}
}

func progressCreate(max int64, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(max,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]/[reset]",
			SaucerHead:    "[green]/[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
