package downloader

import (
	"time"

	"syncabull/internal/retry"
)

func (d *Downloader) SetNowFunc(now func() time.Time) {
	d.now = now
}

func (d *Downloader) SetPolicy(policy retry.Policy) {
	d.policy = policy
}
