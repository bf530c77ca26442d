package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/judgeboard/internal/domain/model"
	"github.com/okian/judgeboard/pkg/logger"
	"github.com/okian/judgeboard/pkg/metrics"
)

const (
	pingTimeout       = 5 * time.Second
	pgUniqueViolation = "23505"
)

type judgeRow struct {
	ID               string `gorm:"primaryKey;size:36"`
	Username         string `gorm:"size:50;not null;uniqueIndex:judges_username_key"`
	PasswordHash     string `gorm:"not null"`
	DisplayName      string `gorm:"size:100;not null"`
	FirstName        string `gorm:"size:100;not null"`
	LastName         string `gorm:"size:100;not null"`
	Email            string `gorm:"size:255;not null;uniqueIndex:judges_email_key"`
	Phone            string `gorm:"size:32;not null"`
	Address          string
	City             string `gorm:"size:100"`
	State            string `gorm:"size:50"`
	ZipCode          string `gorm:"size:20"`
	BarNumber        string `gorm:"size:50;not null"`
	LicenseState     string `gorm:"size:50;not null"`
	YearsExperience  *int
	EmergencyContact string `gorm:"size:100"`
	EmergencyPhone   string `gorm:"size:32"`
	Notes            string `gorm:"type:text"`
	Active           bool   `gorm:"not null"`
	CreatedAt        time.Time
}

func (judgeRow) TableName() string { return "judges" }

type specializationRow struct {
	ID      uint   `gorm:"primaryKey"`
	JudgeID string `gorm:"size:36;not null;index"`
	Tag     string `gorm:"size:100;not null"`
}

func (specializationRow) TableName() string { return "judge_specializations" }

type courtAssignmentRow struct {
	ID      uint   `gorm:"primaryKey"`
	JudgeID string `gorm:"size:36;not null;index"`
	Court   string `gorm:"size:100;not null"`
}

func (courtAssignmentRow) TableName() string { return "judge_court_assignments" }

type participantRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Username    string `gorm:"size:50;not null;uniqueIndex:participants_username_key"`
	DisplayName string `gorm:"size:100;not null"`
	Category    string `gorm:"size:50"`
	Description string `gorm:"type:text"`
}

func (participantRow) TableName() string { return "participants" }

type scoreRow struct {
	ID            uint   `gorm:"primaryKey"`
	JudgeID       string `gorm:"size:36;not null;uniqueIndex:scores_judge_participant_key,priority:1"`
	ParticipantID string `gorm:"size:64;not null;uniqueIndex:scores_judge_participant_key,priority:2;index"`
	Value         int    `gorm:"not null"`
	Comment       string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time `gorm:"index"`
}

func (scoreRow) TableName() string { return "scores" }

type scoreViewRow struct {
	JudgeID         string
	ParticipantID   string
	Value           int
	Comment         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	JudgeName       string
	ParticipantName string
}

type tallyRow struct {
	ParticipantID string
	Sum           int64
	Count         int
	LastUpdated   time.Time
}

// PostgresStore is the durable Store backed by gorm over pgx.
type PostgresStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// Connect opens and pings the database.
func Connect(ctx context.Context, dsn string, log logger.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve postgres sql db handle: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db, log), nil
}

// NewPostgresStore wraps an already opened gorm handle.
func NewPostgresStore(db *gorm.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: log}
}

// AutoMigrate creates tables and the unique indexes every write relies on.
func (s *PostgresStore) AutoMigrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&judgeRow{},
		&specializationRow{},
		&courtAssignmentRow{},
		&participantRow{},
		&scoreRow{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// View runs fn in a read-only repeatable-read transaction so every read sees
// the same snapshot.
func (s *PostgresStore) View(ctx context.Context, fn func(Reader) error) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	metrics.RecordStoreTx("view", float64(time.Since(start).Microseconds())/1000, err != nil)
	return s.translate(ctx, "view", err)
}

// Update runs fn in a read-committed transaction. gorm rolls back on error
// and on panic.
func (s *PostgresStore) Update(ctx context.Context, fn func(Tx) error) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	metrics.RecordStoreTx("update", float64(time.Since(start).Microseconds())/1000, err != nil)
	return s.translate(ctx, "update", err)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) translate(ctx context.Context, mode string, err error) error {
	if err == nil {
		return nil
	}
	out := translateError(err)
	expected := errors.Is(out, ErrNotFound) || errors.Is(out, ErrUniqueViolation) || model.KindOf(out) != nil
	if !expected && s.logger != nil {
		s.logger.Error(ctx, "store transaction failed", logger.String("mode", mode), logger.Error(err))
	}
	return out
}

// translateError maps driver errors onto the package sentinels. Errors that
// are already ours pass through.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &UniqueViolationError{Constraint: pgErr.ConstraintName}
	}
	return err
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) Judge(id string) (model.Judge, error) {
	return t.judgeWhere("id = ?", id)
}

func (t *gormTx) JudgeByUsername(username string) (model.Judge, error) {
	return t.judgeWhere("username = ?", username)
}

func (t *gormTx) JudgeByEmail(email string) (model.Judge, error) {
	return t.judgeWhere("email = ?", strings.ToLower(email))
}

func (t *gormTx) judgeWhere(query string, arg any) (model.Judge, error) {
	var row judgeRow
	if err := t.db.Where(query, arg).Take(&row).Error; err != nil {
		return model.Judge{}, translateError(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) Specializations(judgeID string) ([]string, error) {
	var tags []string
	err := t.db.Model(&specializationRow{}).Where("judge_id = ?", judgeID).Order("id").Pluck("tag", &tags).Error
	return tags, translateError(err)
}

func (t *gormTx) CourtAssignments(judgeID string) ([]string, error) {
	var courts []string
	err := t.db.Model(&courtAssignmentRow{}).Where("judge_id = ?", judgeID).Order("id").Pluck("court", &courts).Error
	return courts, translateError(err)
}

func (t *gormTx) CountJudges() (int, error) {
	var n int64
	err := t.db.Model(&judgeRow{}).Count(&n).Error
	return int(n), translateError(err)
}

func (t *gormTx) Participant(id string) (model.Participant, error) {
	var row participantRow
	if err := t.db.Where("id = ?", id).Take(&row).Error; err != nil {
		return model.Participant{}, translateError(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) Participants() ([]model.Participant, error) {
	var rows []participantRow
	if err := t.db.Order(`display_name COLLATE "C" ASC, id ASC`).Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	out := make([]model.Participant, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (t *gormTx) Score(judgeID, participantID string) (model.Score, error) {
	var row scoreRow
	err := t.db.Where("judge_id = ? AND participant_id = ?", judgeID, participantID).Take(&row).Error
	if err != nil {
		return model.Score{}, translateError(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) tallyQuery() *gorm.DB {
	return t.db.Model(&scoreRow{}).
		Select("participant_id, COALESCE(SUM(value), 0) AS sum, COUNT(*) AS count, MAX(updated_at) AS last_updated").
		Group("participant_id")
}

func (t *gormTx) Tally(participantID string) (model.Tally, error) {
	var rows []tallyRow
	if err := t.tallyQuery().Where("participant_id = ?", participantID).Scan(&rows).Error; err != nil {
		return model.Tally{}, translateError(err)
	}
	if len(rows) == 0 {
		return model.Tally{}, nil
	}
	return rows[0].toModel(), nil
}

func (t *gormTx) Tallies() (map[string]model.Tally, error) {
	var rows []tallyRow
	if err := t.tallyQuery().Scan(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	out := make(map[string]model.Tally, len(rows))
	for _, r := range rows {
		out[r.ParticipantID] = r.toModel()
	}
	return out, nil
}

func (t *gormTx) LastScoreUpdate() (time.Time, error) {
	var latest sql.NullTime
	if err := t.db.Model(&scoreRow{}).Select("MAX(updated_at)").Row().Scan(&latest); err != nil {
		return time.Time{}, translateError(err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

func (t *gormTx) scoreViews(limit int, where string, args ...any) ([]model.ScoreView, error) {
	q := t.db.Table("scores AS s").
		Select("s.judge_id, s.participant_id, s.value, s.comment, s.created_at, s.updated_at, " +
			"j.display_name AS judge_name, p.display_name AS participant_name").
		Joins("JOIN judges AS j ON j.id = s.judge_id").
		Joins("JOIN participants AS p ON p.id = s.participant_id")
	if where != "" {
		q = q.Where(where, args...)
	}
	q = q.Order("s.updated_at DESC, s.judge_id ASC, s.participant_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []scoreViewRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, translateError(err)
	}
	out := make([]model.ScoreView, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (t *gormTx) ScoresByParticipant(participantID string) ([]model.ScoreView, error) {
	return t.scoreViews(0, "s.participant_id = ?", participantID)
}

func (t *gormTx) ScoresByJudge(judgeID string, limit int) ([]model.ScoreView, error) {
	return t.scoreViews(limit, "s.judge_id = ?", judgeID)
}

func (t *gormTx) RecentScores(limit int) ([]model.ScoreView, error) {
	return t.scoreViews(limit, "")
}

func (t *gormTx) Stats() (model.Stats, error) {
	var judges, participants int64
	if err := t.db.Model(&judgeRow{}).Count(&judges).Error; err != nil {
		return model.Stats{}, translateError(err)
	}
	if err := t.db.Model(&participantRow{}).Count(&participants).Error; err != nil {
		return model.Stats{}, translateError(err)
	}
	var (
		scores int64
		avg    sql.NullFloat64
	)
	if err := t.db.Model(&scoreRow{}).Select("COUNT(*), AVG(value)").Row().Scan(&scores, &avg); err != nil {
		return model.Stats{}, translateError(err)
	}
	return model.Stats{
		Judges:       int(judges),
		Participants: int(participants),
		Scores:       int(scores),
		AverageScore: avg.Float64,
	}, nil
}

func (t *gormTx) InsertJudge(j model.Judge) error {
	row := judgeRowFromModel(j)
	return translateError(t.db.Create(&row).Error)
}

func (t *gormTx) InsertSpecialization(judgeID, tag string) error {
	return translateError(t.db.Create(&specializationRow{JudgeID: judgeID, Tag: tag}).Error)
}

func (t *gormTx) InsertCourtAssignment(judgeID, tag string) error {
	return translateError(t.db.Create(&courtAssignmentRow{JudgeID: judgeID, Court: tag}).Error)
}

func (t *gormTx) UpsertParticipant(p model.Participant) error {
	row := participantRow{
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Category:    p.Category,
		Description: p.Description,
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "category", "description"}),
	}).Create(&row).Error
	return translateError(err)
}

func (t *gormTx) LockScore(judgeID, participantID string) (model.Score, error) {
	var row scoreRow
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("judge_id = ? AND participant_id = ?", judgeID, participantID).
		Take(&row).Error
	if err != nil {
		return model.Score{}, translateError(err)
	}
	return row.toModel(), nil
}

func (t *gormTx) InsertScore(s model.Score) error {
	row := scoreRow{
		JudgeID:       s.JudgeID,
		ParticipantID: s.ParticipantID,
		Value:         s.Value,
		Comment:       s.Comment,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	return translateError(t.db.Create(&row).Error)
}

func (t *gormTx) UpdateScore(s model.Score) error {
	res := t.db.Model(&scoreRow{}).
		Where("judge_id = ? AND participant_id = ?", s.JudgeID, s.ParticipantID).
		Updates(map[string]any{
			"value":      s.Value,
			"comment":    s.Comment,
			"updated_at": s.UpdatedAt,
		})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r judgeRow) toModel() model.Judge {
	return model.Judge{
		ID:           r.ID,
		PasswordHash: r.PasswordHash,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		JudgeProfile: model.JudgeProfile{
			Username:         r.Username,
			DisplayName:      r.DisplayName,
			FirstName:        r.FirstName,
			LastName:         r.LastName,
			Email:            r.Email,
			Phone:            r.Phone,
			Address:          r.Address,
			City:             r.City,
			State:            r.State,
			ZipCode:          r.ZipCode,
			BarNumber:        r.BarNumber,
			LicenseState:     r.LicenseState,
			YearsExperience:  r.YearsExperience,
			EmergencyContact: r.EmergencyContact,
			EmergencyPhone:   r.EmergencyPhone,
			Notes:            r.Notes,
		},
	}
}

func judgeRowFromModel(j model.Judge) judgeRow {
	p := j.JudgeProfile
	return judgeRow{
		ID:               j.ID,
		Username:         p.Username,
		PasswordHash:     j.PasswordHash,
		DisplayName:      p.DisplayName,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Email:            strings.ToLower(p.Email),
		Phone:            p.Phone,
		Address:          p.Address,
		City:             p.City,
		State:            p.State,
		ZipCode:          p.ZipCode,
		BarNumber:        p.BarNumber,
		LicenseState:     p.LicenseState,
		YearsExperience:  p.YearsExperience,
		EmergencyContact: p.EmergencyContact,
		EmergencyPhone:   p.EmergencyPhone,
		Notes:            p.Notes,
		Active:           j.Active,
		CreatedAt:        j.CreatedAt,
	}
}

func (r participantRow) toModel() model.Participant {
	return model.Participant{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		Category:    r.Category,
		Description: r.Description,
	}
}

func (r scoreRow) toModel() model.Score {
	return model.Score{
		JudgeID:       r.JudgeID,
		ParticipantID: r.ParticipantID,
		Value:         r.Value,
		Comment:       r.Comment,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r scoreViewRow) toModel() model.ScoreView {
	return model.ScoreView{
		Score: model.Score{
			JudgeID:       r.JudgeID,
			ParticipantID: r.ParticipantID,
			Value:         r.Value,
			Comment:       r.Comment,
			CreatedAt:     r.CreatedAt,
			UpdatedAt:     r.UpdatedAt,
		},
		JudgeName:       r.JudgeName,
		ParticipantName: r.ParticipantName,
	}
}

func (r tallyRow) toModel() model.Tally {
	return model.Tally{Sum: r.Sum, Count: r.Count, LastUpdated: r.LastUpdated}
}
