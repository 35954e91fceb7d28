package nats

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"trivia-lobby-service/internal/domain"
)

// SnapshotPublisher fans lobby snapshots out on NATS so transports in other
// processes can push them. Delivery is best-effort: the client buffers writes
// and a publish failure never reaches a mutating operation.
type SnapshotPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

func NewSnapshotPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) *SnapshotPublisher {
	if prefix == "" {
		prefix = "lobby.snapshot"
	}
	return &SnapshotPublisher{conn: conn, prefix: prefix, logger: logger}
}

func (p *SnapshotPublisher) Publish(snap domain.LobbySnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		p.logger.Warn().Err(err).Str("lobbyId", snap.LobbyID).Msg("marshal snapshot")
		return
	}
	if err := p.conn.Publish(p.prefix+"."+snap.LobbyID, data); err != nil {
		p.logger.Debug().Err(err).Str("lobbyId", snap.LobbyID).Msg("snapshot publish dropped")
	}
}
