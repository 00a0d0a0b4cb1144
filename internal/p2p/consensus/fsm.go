package consensus

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/hardstakes/arena/internal/p2p/protocol"
	"github.com/hardstakes/arena/internal/p2p/state"
)

// fsm wires raft log entries into the state machine.
type fsm struct {
	machine *state.Machine
	logger  zerolog.Logger
}

// Apply returns the machine's rejection as the log response; the leader
// hands it back to the submitter.
func (f *fsm) Apply(log *raft.Log) interface{} {
	var tx protocol.Tx
	if err := json.Unmarshal(log.Data, &tx); err != nil {
		return fmt.Errorf("decode tx: %w", err)
	}
	if err := f.machine.ApplyTx(tx); err != nil {
		f.logger.Debug().Err(err).Str("tx_id", tx.TxID).Str("op", string(tx.Op)).Uint64("index", log.Index).Msg("tx rejected")
		return err
	}
	return nil
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	data, err := f.machine.Marshal()
	if err != nil {
		return nil, err
	}
	return &fsmSnapshot{data: data}, nil
}

// Restore reads a zstd-compressed machine snapshot.
func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	dec, err := zstd.NewReader(rc)
	if err != nil {
		return err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return fmt.Errorf("decompress snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := f.machine.Unmarshal(data); err != nil {
		return err
	}
	f.logger.Info().Int("bytes", len(data)).Msg("state restored from snapshot")
	return nil
}

type fsmSnapshot struct {
	data []byte
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if len(s.data) == 0 {
		return sink.Close()
	}
	enc, err := zstd.NewWriter(sink, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = sink.Cancel()
		return err
	}
	if _, err := enc.Write(s.data); err != nil {
		_ = enc.Close()
		_ = sink.Cancel()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
