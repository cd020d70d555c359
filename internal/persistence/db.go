// Package persistence provides SQLite-based world storage.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/engine"
	"github.com/dakeena/living-chronicle/internal/era"
	"github.com/dakeena/living-chronicle/internal/pantheon"
	"github.com/dakeena/living-chronicle/internal/population"
)

// DB wraps a SQLite connection. It implements engine.Storage.
type DB struct {
	conn *sqlx.DB
}

var _ engine.Storage = (*DB)(nil)

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; the runner already serializes ticks.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS factions (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		doctrine_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS citizens (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		faction_id INTEGER,
		beliefs_json TEXT NOT NULL,
		fear REAL NOT NULL,
		gratitude REAL NOT NULL,
		alive INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS gods (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		domain TEXT NOT NULL,
		belief_strength REAL NOT NULL,
		coherence REAL NOT NULL,
		alive INTEGER NOT NULL,
		birth_day INTEGER NOT NULL,
		death_day INTEGER,
		strong_days INTEGER NOT NULL,
		weak_days INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS myths (
		id INTEGER PRIMARY KEY,
		text TEXT NOT NULL,
		faction_id INTEGER,
		domain TEXT NOT NULL,
		confidence REAL NOT NULL,
		day_created INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_citizens_alive ON citizens(alive);
	CREATE INDEX IF NOT EXISTS idx_citizens_faction ON citizens(faction_id);
	CREATE INDEX IF NOT EXISTS idx_gods_alive ON gods(alive);
	CREATE INDEX IF NOT EXISTS idx_myths_day ON myths(day_created);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// World state lives in world_meta as one row per field.
const (
	metaDay       = "current_day"
	metaEra       = "era"
	metaDaysInEra = "days_in_era"
	metaSeed      = "seed"
)

// saveMeta stores a key-value pair in world metadata using ex, which may
// be the connection or an open transaction.
func saveMeta(ctx context.Context, ex sqlx.ExecerContext, key, value string) error {
	_, err := ex.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// LoadWorldState returns nil, nil when no world has been saved.
func (db *DB) LoadWorldState(ctx context.Context) (*engine.WorldState, error) {
	rows := []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}{}
	if err := db.conn.SelectContext(ctx, &rows, "SELECT key, value FROM world_meta"); err != nil {
		return nil, fmt.Errorf("select world meta: %w", err)
	}
	meta := make(map[string]string, len(rows))
	for _, r := range rows {
		meta[r.Key] = r.Value
	}
	if _, ok := meta[metaDay]; !ok {
		return nil, nil
	}

	var ws engine.WorldState
	var err error
	if ws.CurrentDay, err = strconv.Atoi(meta[metaDay]); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaDay, err)
	}
	if ws.DaysInEra, err = strconv.Atoi(meta[metaDaysInEra]); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaDaysInEra, err)
	}
	if ws.Seed, err = strconv.ParseInt(meta[metaSeed], 10, 64); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaSeed, err)
	}
	if ws.Era, err = era.Parse(meta[metaEra]); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaEra, err)
	}
	return &ws, nil
}

// SaveWorldState writes every world_meta field in one transaction.
func (db *DB) SaveWorldState(ctx context.Context, ws *engine.WorldState) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	fields := [][2]string{
		{metaDay, strconv.Itoa(ws.CurrentDay)},
		{metaEra, ws.Era.String()},
		{metaDaysInEra, strconv.Itoa(ws.DaysInEra)},
		{metaSeed, strconv.FormatInt(ws.Seed, 10)},
	}
	for _, f := range fields {
		if err := saveMeta(ctx, tx, f[0], f[1]); err != nil {
			return fmt.Errorf("save %s: %w", f[0], err)
		}
	}
	return tx.Commit()
}

type factionRow struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	DoctrineJSON string `db:"doctrine_json"`
}

// LoadFactions returns every faction in id order. Members are not loaded.
func (db *DB) LoadFactions(ctx context.Context) ([]*population.Faction, error) {
	var rows []factionRow
	if err := db.conn.SelectContext(ctx, &rows,
		"SELECT id, name, doctrine_json FROM factions ORDER BY id"); err != nil {
		return nil, fmt.Errorf("select factions: %w", err)
	}

	factions := make([]*population.Faction, 0, len(rows))
	for _, r := range rows {
		f := &population.Faction{ID: r.ID, Name: r.Name}
		if err := json.Unmarshal([]byte(r.DoctrineJSON), &f.Doctrine); err != nil {
			return nil, fmt.Errorf("faction %d doctrine: %w", r.ID, err)
		}
		factions = append(factions, f)
	}
	return factions, nil
}

// SaveFaction inserts or replaces a faction and returns its id.
func (db *DB) SaveFaction(ctx context.Context, f *population.Faction) (int64, error) {
	doctrineJSON, err := json.Marshal(f.Doctrine)
	if err != nil {
		return 0, err
	}
	res, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO factions (id, name, doctrine_json) VALUES (?, ?, ?)",
		nullID(f.ID), f.Name, string(doctrineJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("save faction %q: %w", f.Name, err)
	}
	return res.LastInsertId()
}

type citizenRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	FactionID   sql.NullInt64 `db:"faction_id"`
	BeliefsJSON string        `db:"beliefs_json"`
	Fear        float64       `db:"fear"`
	Gratitude   float64       `db:"gratitude"`
	Alive       bool          `db:"alive"`
}

// LoadCitizens returns citizens in id order, which is also genesis order.
func (db *DB) LoadCitizens(ctx context.Context, aliveOnly bool) ([]*population.Citizen, error) {
	query := "SELECT id, name, faction_id, beliefs_json, fear, gratitude, alive FROM citizens"
	if aliveOnly {
		query += " WHERE alive = 1"
	}
	query += " ORDER BY id"

	var rows []citizenRow
	if err := db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select citizens: %w", err)
	}

	citizens := make([]*population.Citizen, 0, len(rows))
	for _, r := range rows {
		c := &population.Citizen{
			ID:        r.ID,
			Name:      r.Name,
			FactionID: fromNull(r.FactionID),
			Fear:      r.Fear,
			Gratitude: r.Gratitude,
			Alive:     r.Alive,
		}
		if err := json.Unmarshal([]byte(r.BeliefsJSON), &c.Beliefs); err != nil {
			return nil, fmt.Errorf("citizen %d beliefs: %w", r.ID, err)
		}
		citizens = append(citizens, c)
	}
	return citizens, nil
}

const insertCitizen = `INSERT OR REPLACE INTO citizens
	(id, name, faction_id, beliefs_json, fear, gratitude, alive)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// SaveCitizen inserts or replaces one citizen and returns its id.
func (db *DB) SaveCitizen(ctx context.Context, c *population.Citizen) (int64, error) {
	beliefsJSON, err := json.Marshal(c.Beliefs)
	if err != nil {
		return 0, err
	}
	res, err := db.conn.ExecContext(ctx, insertCitizen,
		nullID(c.ID), c.Name, c.FactionID, string(beliefsJSON), c.Fear, c.Gratitude, boolInt(c.Alive))
	if err != nil {
		return 0, fmt.Errorf("save citizen %q: %w", c.Name, err)
	}
	return res.LastInsertId()
}

// SaveCitizens writes every citizen in one transaction and assigns ids to
// new ones. The kernel uses it in place of per-citizen saves.
func (db *DB) SaveCitizens(ctx context.Context, citizens []*population.Citizen) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertCitizen)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ids := make([]int64, len(citizens))
	for i, c := range citizens {
		beliefsJSON, err := json.Marshal(c.Beliefs)
		if err != nil {
			return err
		}
		res, err := stmt.ExecContext(ctx,
			nullID(c.ID), c.Name, c.FactionID, string(beliefsJSON), c.Fear, c.Gratitude, boolInt(c.Alive))
		if err != nil {
			return fmt.Errorf("insert citizen %q: %w", c.Name, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	for i, c := range citizens {
		c.ID = ids[i]
	}
	return nil
}

type godRow struct {
	ID             int64         `db:"id"`
	Name           string        `db:"name"`
	Domain         string        `db:"domain"`
	BeliefStrength float64       `db:"belief_strength"`
	Coherence      float64       `db:"coherence"`
	Alive          bool          `db:"alive"`
	BirthDay       int           `db:"birth_day"`
	DeathDay       sql.NullInt64 `db:"death_day"`
	StrongDays     int           `db:"strong_days"`
	WeakDays       int           `db:"weak_days"`
}

// LoadGods returns gods in id order.
func (db *DB) LoadGods(ctx context.Context, aliveOnly bool) ([]*pantheon.God, error) {
	query := `SELECT id, name, domain, belief_strength, coherence, alive,
		birth_day, death_day, strong_days, weak_days FROM gods`
	if aliveOnly {
		query += " WHERE alive = 1"
	}
	query += " ORDER BY id"

	var rows []godRow
	if err := db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("select gods: %w", err)
	}

	gods := make([]*pantheon.God, 0, len(rows))
	for _, r := range rows {
		d, err := domain.Parse(r.Domain)
		if err != nil {
			return nil, fmt.Errorf("god %d: %w", r.ID, err)
		}
		g := &pantheon.God{
			ID:             r.ID,
			Name:           r.Name,
			Domain:         d,
			BeliefStrength: r.BeliefStrength,
			Coherence:      r.Coherence,
			Alive:          r.Alive,
			BirthDay:       r.BirthDay,
			StrongDays:     r.StrongDays,
			WeakDays:       r.WeakDays,
		}
		if r.DeathDay.Valid {
			day := int(r.DeathDay.Int64)
			g.DeathDay = &day
		}
		gods = append(gods, g)
	}
	return gods, nil
}

// SaveGod inserts or replaces a god and returns its id.
func (db *DB) SaveGod(ctx context.Context, g *pantheon.God) (int64, error) {
	row := map[string]any{
		"id":              nullID(g.ID),
		"name":            g.Name,
		"domain":          g.Domain.String(),
		"belief_strength": g.BeliefStrength,
		"coherence":       g.Coherence,
		"alive":           boolInt(g.Alive),
		"birth_day":       g.BirthDay,
		"death_day":       g.DeathDay,
		"strong_days":     g.StrongDays,
		"weak_days":       g.WeakDays,
	}
	res, err := db.conn.NamedExecContext(ctx, `INSERT OR REPLACE INTO gods
		(id, name, domain, belief_strength, coherence, alive, birth_day, death_day, strong_days, weak_days)
		VALUES (:id, :name, :domain, :belief_strength, :coherence, :alive, :birth_day, :death_day, :strong_days, :weak_days)`,
		row)
	if err != nil {
		return 0, fmt.Errorf("save god %q: %w", g.Name, err)
	}
	return res.LastInsertId()
}

type mythRow struct {
	ID         int64         `db:"id"`
	Text       string        `db:"text"`
	FactionID  sql.NullInt64 `db:"faction_id"`
	Domain     string        `db:"domain"`
	Confidence float64       `db:"confidence"`
	DayCreated int           `db:"day_created"`
}

// SaveMyth inserts a myth. Myths are immutable, so an existing id is kept.
func (db *DB) SaveMyth(ctx context.Context, m *population.Myth) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO myths (id, text, faction_id, domain, confidence, day_created)
		VALUES (?, ?, ?, ?, ?, ?)`,
		nullID(m.ID), m.Text, m.FactionID, m.Domain.String(), m.Confidence, m.DayCreated,
	)
	if err != nil {
		return 0, fmt.Errorf("save myth: %w", err)
	}
	return res.LastInsertId()
}

// LoadMyths returns the most recent myths, newest first. limit <= 0
// returns all of them.
func (db *DB) LoadMyths(ctx context.Context, limit int) ([]*population.Myth, error) {
	query := "SELECT id, text, faction_id, domain, confidence, day_created FROM myths ORDER BY id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []mythRow
	if err := db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select myths: %w", err)
	}

	myths := make([]*population.Myth, 0, len(rows))
	for _, r := range rows {
		d, err := domain.Parse(r.Domain)
		if err != nil {
			return nil, fmt.Errorf("myth %d: %w", r.ID, err)
		}
		myths = append(myths, &population.Myth{
			ID:         r.ID,
			Text:       r.Text,
			FactionID:  fromNull(r.FactionID),
			Domain:     d,
			Confidence: r.Confidence,
			DayCreated: r.DayCreated,
		})
	}
	return myths, nil
}

// Counts summarises table sizes for status output.
type Counts struct {
	Factions       int `db:"factions" json:"factions"`
	Citizens       int `db:"citizens" json:"citizens"`
	LivingCitizens int `db:"living_citizens" json:"living_citizens"`
	Gods           int `db:"gods" json:"gods"`
	LivingGods     int `db:"living_gods" json:"living_gods"`
	Myths          int `db:"myths" json:"myths"`
}

// Counts returns the number of rows in each entity table.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.conn.GetContext(ctx, &c, `SELECT
		(SELECT COUNT(*) FROM factions) AS factions,
		(SELECT COUNT(*) FROM citizens) AS citizens,
		(SELECT COUNT(*) FROM citizens WHERE alive = 1) AS living_citizens,
		(SELECT COUNT(*) FROM gods) AS gods,
		(SELECT COUNT(*) FROM gods WHERE alive = 1) AS living_gods,
		(SELECT COUNT(*) FROM myths) AS myths`)
	if err != nil {
		return c, fmt.Errorf("count rows: %w", err)
	}
	return c, nil
}

// ClearAll deletes every row from every table.
func (db *DB) ClearAll(ctx context.Context) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"myths", "gods", "citizens", "factions", "world_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("world storage cleared")
	return nil
}

// nullID maps the zero id to NULL so SQLite assigns the next rowid.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func fromNull(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
