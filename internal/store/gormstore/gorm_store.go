package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"maveretta/internal/store"
	storemodel "maveretta/internal/store/model"
)

// GormStore is the SQLite-backed audit trail.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.DecisionModel{},
		&storemodel.ExperienceModel{},
		&storemodel.ExperimentResultModel{},
		&storemodel.ShadowDeviationModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) SaveDecision(ctx context.Context, rec store.DecisionRecord) error {
	details, err := marshalJSON(rec.Details)
	if err != nil {
		return err
	}
	m := storemodel.DecisionModel{
		CycleID:       rec.CycleID,
		Symbol:        rec.Symbol,
		Action:        rec.Action,
		Confidence:    rec.Confidence,
		Approved:      boolToInt(rec.Approved),
		Reason:        rec.Reason,
		NumAgents:     rec.NumAgents,
		DetailsJSON:   details,
		TimestampUnix: rec.Timestamp.UnixMilli(),
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) RecentDecisions(ctx context.Context, limit int) ([]store.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []storemodel.DecisionModel
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.DecisionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, decisionRecord(row))
	}
	return out, nil
}

func (s *GormStore) DecisionsBetween(ctx context.Context, symbol string, from, to time.Time) ([]store.DecisionRecord, error) {
	q := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UnixMilli(), to.UnixMilli())
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []storemodel.DecisionModel
	if err := q.Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.DecisionRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, decisionRecord(row))
	}
	return out, nil
}

func (s *GormStore) SaveExperience(ctx context.Context, rec store.ExperienceRecord) error {
	contextJSON, err := marshalJSON(rec.Context)
	if err != nil {
		return err
	}
	m := storemodel.ExperienceModel{
		AgentID:       rec.AgentID,
		Pattern:       rec.Pattern,
		Success:       boolToInt(rec.Success),
		PnL:           rec.PnL,
		Weight:        rec.Weight,
		ContextJSON:   contextJSON,
		TimestampUnix: rec.Timestamp.UnixMilli(),
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ExperiencesByPattern(ctx context.Context, pattern string, limit int) ([]store.ExperienceRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	var rows []storemodel.ExperienceModel
	err := s.db.WithContext(ctx).
		Where("pattern = ?", pattern).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.ExperienceRecord, 0, len(rows))
	for _, row := range rows {
		rec := store.ExperienceRecord{
			AgentID:   row.AgentID,
			Pattern:   row.Pattern,
			Success:   row.Success != 0,
			PnL:       row.PnL,
			Weight:    row.Weight,
			Timestamp: time.UnixMilli(row.TimestampUnix),
		}
		rec.Context = unmarshalMap(row.ContextJSON)
		out = append(out, rec)
	}
	return out, nil
}

func (s *GormStore) SaveExperimentResult(ctx context.Context, rec store.ExperimentResultRecord) error {
	metadata, err := marshalJSON(rec.Metadata)
	if err != nil {
		return err
	}
	m := storemodel.ExperimentResultModel{
		TestID:        rec.TestID,
		VariantID:     rec.VariantID,
		Symbol:        rec.Symbol,
		PnL:           rec.PnL,
		MetadataJSON:  metadata,
		TimestampUnix: rec.Timestamp.UnixMilli(),
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ExperimentResults(ctx context.Context, testID string) ([]store.ExperimentResultRecord, error) {
	var rows []storemodel.ExperimentResultModel
	err := s.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]store.ExperimentResultRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.ExperimentResultRecord{
			TestID:    row.TestID,
			VariantID: row.VariantID,
			Symbol:    row.Symbol,
			PnL:       row.PnL,
			Metadata:  unmarshalMap(row.MetadataJSON),
			Timestamp: time.UnixMilli(row.TimestampUnix),
		})
	}
	return out, nil
}

func (s *GormStore) SaveShadowDeviation(ctx context.Context, rec store.ShadowDeviationRecord) error {
	m := storemodel.ShadowDeviationModel{
		TradeID:       rec.TradeID,
		Symbol:        rec.Symbol,
		ShadowPnL:     rec.ShadowPnL,
		RealPnL:       rec.RealPnL,
		Slippage:      rec.Slippage,
		TimestampUnix: rec.Timestamp.UnixMilli(),
		CreatedAtUnix: time.Now().UnixMilli(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ShadowDeviationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]store.ShadowDeviationRecord, error) {
	q := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp <= ?", from.UnixMilli(), to.UnixMilli())
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []storemodel.ShadowDeviationModel
	if err := q.Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.ShadowDeviationRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.ShadowDeviationRecord{
			TradeID:   row.TradeID,
			Symbol:    row.Symbol,
			ShadowPnL: row.ShadowPnL,
			RealPnL:   row.RealPnL,
			Slippage:  row.Slippage,
			Timestamp: time.UnixMilli(row.TimestampUnix),
		})
	}
	return out, nil
}

func decisionRecord(row storemodel.DecisionModel) store.DecisionRecord {
	return store.DecisionRecord{
		CycleID:    row.CycleID,
		Symbol:     row.Symbol,
		Action:     row.Action,
		Confidence: row.Confidence,
		Approved:   row.Approved != 0,
		Reason:     row.Reason,
		NumAgents:  row.NumAgents,
		Details:    unmarshalMap(row.DetailsJSON),
		Timestamp:  time.UnixMilli(row.TimestampUnix),
	}
}

func marshalJSON(m map[string]any) (datatypes.JSON, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json payload: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func unmarshalMap(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
