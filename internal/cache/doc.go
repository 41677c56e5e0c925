// Package cache implements a segmented TTL cache engine.
//
// Values live at a (segment, key) address. Keys are case-insensitive, segments
// are not. Every entry records when it was written and its original TTL; reads
// report the remaining TTL and never return an entry past it, whatever the
// backend's reclamation schedule.
//
//	c := cache.New(store.NewMemoryStore(), log)
//	if err := c.Initialize(ctx); err != nil {
//		return err
//	}
//	defer c.Shutdown(ctx)
//
//	_ = c.Set(ctx, "recent-orders", "A123", order, cache.WithTTL(5*time.Second))
//	item, err := cache.GetValue[Order](ctx, c, "recent-orders", "a123")
package cache
