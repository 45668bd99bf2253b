package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lectern/meshcall/internal/domain"
)

// Leave releases everything in dependency order: negotiation and connection
// entries first, then sinks, then the signaling channel, then local media.
// Runs once no matter how many paths reach it (explicit leave, room closed,
// signal loss, process shutdown).
func (c *Coordinator) Leave() {
	c.leaveOnce.Do(func() {
		log.Info().Str("module", "orch").Str("room", string(c.Room)).Msg("leaving session")
		c.mu.Lock()
		if c.cancelMesh != nil {
			c.cancelMesh()
		}
		c.mu.Unlock()
		c.Registry.TeardownAll()
		c.Sinks.CloseAll()
		c.Signal.Close()
		c.wg.Wait()
		c.Media.Release()
		log.Info().Str("module", "orch").Msg("session left")
	})
}

// EndClass is the moderator's way out: tell the backend the class is over,
// then leave. Students just leave.
func (c *Coordinator) EndClass(ctx context.Context) {
	if c.Identity.Role == domain.RoleModerator && c.API != nil {
		c.API.EndClass(ctx, c.Room)
	}
	c.Leave()
}
