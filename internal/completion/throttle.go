package completion

import "context"

// acquire takes a concurrency slot and then a rate token. The returned
// release gives the slot back; it is a no-op when no semaphore is set.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	release := func() {}
	if c.sem != nil {
		select {
		case c.sem <- struct{}{}:
			release = func() { <-c.sem }
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}
