package fixture

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"github.com/albapepper/powerdata/internal/keys"
	"github.com/albapepper/powerdata/internal/store"
)

// ImportResult counts a player directory import.
type ImportResult struct {
	Read    int
	Written int
	Failed  int
}

// ImportPlayers upserts player records from r into the directory table in a
// single transaction. r holds either one JSON object per line or a single
// JSON array. A record that fails to decode or write is counted and skipped.
func ImportPlayers(
	ctx context.Context,
	st store.Store,
	r io.Reader,
	table string,
	spec store.FieldSpec,
	policy keys.SquadPolicy,
	logger *slog.Logger,
) (ImportResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if table == "" {
		table = store.DefaultPlayerTable
	}
	var res ImportResult

	records, err := readPlayerRecords(r, &res, logger)
	if err != nil {
		return res, err
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		return res, errors.Wrap(err, "begin player import")
	}
	for _, rec := range records {
		row := playerRow(rec, policy)
		err := tx.Batch(ctx, func(ctx context.Context) error {
			return tx.Upsert(ctx, table, row, spec)
		})
		if err != nil {
			res.Failed++
			logger.Warn("Player upsert failed", "player_id", row["playerId"], "error", err)
			continue
		}
		res.Written++
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return res, errors.Wrap(err, "commit player import")
	}

	logger.Info("Player import done", "table", table, "read", res.Read, "written", res.Written, "failed", res.Failed)
	return res, nil
}

func readPlayerRecords(r io.Reader, res *ImportResult, logger *slog.Logger) ([]map[string]interface{}, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(1)
	for err == nil && isSpace(head[0]) {
		_, _ = br.ReadByte()
		head, err = br.Peek(1)
	}
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read player file")
	}

	if head[0] == '[' {
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, errors.Wrap(err, "read player file")
		}
		var out []map[string]interface{}
		if err := sonic.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrap(err, "decode player array")
		}
		res.Read = len(out)
		return out, nil
	}

	var out []map[string]interface{}
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		res.Read++
		var rec map[string]interface{}
		if err := sonic.Unmarshal(b, &rec); err != nil {
			res.Failed++
			logger.Warn("Skipping undecodable player line", "line", line, "error", err)
			continue
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan player file")
	}
	return out, nil
}

// playerRow fills in the derived directory keys a record may lack.
func playerRow(rec map[string]interface{}, policy keys.SquadPolicy) store.Row {
	row := store.Row(rec)
	playerID := keys.ID(rec["playerId"])
	squadID := keys.ID(rec["squadId"])
	if _, ok := rec["uniquePlayerId"]; !ok {
		row["uniquePlayerId"] = keys.Player(playerID, squadID)
	}
	if _, ok := rec["uniqueSquadId"]; !ok {
		row["uniqueSquadId"] = keys.Squad(squadID, keys.SquadName(rec["squadName"]), policy)
	}
	return row
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
