// Package storage defines the durable record store the engine writes through
// to. The real store (CRUD service, database) lives outside this system; the
// engine only depends on this interface.
package storage

import (
	"context"
	"errors"

	"github.com/dealdojo/backend/internal/model/roleplay"
	"github.com/dealdojo/backend/internal/model/scenario"
)

var ErrNotFound = errors.New("record not found")

// RecordStore is the collaborator contract for durable session and scenario
// records.
type RecordStore interface {
	SaveSession(ctx context.Context, session roleplay.Session) error
	LoadSession(ctx context.Context, id string) (roleplay.Session, error)
	LoadScenario(ctx context.Context, id string) (scenario.Scenario, error)
}
