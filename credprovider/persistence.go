package credprovider

import (
	"context"
	"time"
)

// saveRetryInterval is fixed, not exponential: a failed save is retried at
// most once per minute, on the next fetch() that happens to land after the
// stamp. This is a deliberate divergence from the exponential backoff used
// elsewhere in this codebase for HTTP retries — see DESIGN.md.
const saveRetryInterval = 60 * time.Second

// scheduleSave fires Store.Save in the background. The caller (fetch or a
// just-completed refresh) does not wait on it; failures are absorbed here
// and only ever surface as a logged warning plus a nextSaveRetry stamp.
func (p *Provider) scheduleSave(creds Credentials) {
	go p.trySave(creds)
}

func (p *Provider) trySave(creds Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := p.store.Save(ctx, creds); err != nil {
		p.logger.Warn("credential save failed, will retry on next fetch", map[string]interface{}{
			"error": err.Error(),
		})
		next := time.Now().Add(saveRetryInterval)
		p.mu.Lock()
		p.nextSaveRetry = &next
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	p.nextSaveRetry = nil
	p.mu.Unlock()
}

// maybeRetrySave opportunistically retries a previously failed save, at
// most once per minute, from inside fetch().
func (p *Provider) maybeRetrySave(creds Credentials) {
	p.mu.Lock()
	retry := p.nextSaveRetry
	due := retry != nil && !time.Now().Before(*retry)
	if due {
		// Push the stamp forward before saving so concurrent fetches do
		// not each start their own retry.
		next := time.Now().Add(saveRetryInterval)
		p.nextSaveRetry = &next
	}
	p.mu.Unlock()

	if !due {
		return
	}
	p.scheduleSave(creds)
}
