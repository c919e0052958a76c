// Package cache provides implementations of relq.Cache.
//
//	client := relq.NewClient(drv, registry, relq.WithCache(cache.NewMemory()))
//	users, err := client.Query("User").Remember(time.Minute).Get(ctx)
package cache
