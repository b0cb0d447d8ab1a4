package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wisefido-vision/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockFramesDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *FramesRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewFramesRepository(db, logger)

	return db, mock, repo
}

func TestCreateDetectionFrame_Success(t *testing.T) {
	db, mock, repo := setupMockFramesDB(t)
	defer db.Close()

	frame := &models.DetectionFrame{
		FrameID:     uuid.New().String(),
		CameraID:    "cam-1",
		ThreatLevel: models.ThreatLow,
		Alerts:      []string{"person detected (90%)"},
		PersonCount: 1,
		DetectedAt:  time.Now(),
		CreatedAt:   time.Now(),
	}

	mock.ExpectExec(`INSERT INTO detection_frames`).
		WithArgs(
			frame.FrameID,
			frame.CameraID,
			"low",
			sqlmock.AnyArg(),
			frame.PersonCount,
			frame.DetectedAt,
			frame.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateDetectionFrame(context.Background(), frame)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDetectionFrame_MissingFrameID(t *testing.T) {
	db, mock, repo := setupMockFramesDB(t)
	defer db.Close()

	err := repo.CreateDetectionFrame(context.Background(), &models.DetectionFrame{
		CameraID: "cam-1",
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "frame_id is required")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentFrames_Success(t *testing.T) {
	db, mock, repo := setupMockFramesDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"frame_id", "camera_id", "threat_level", "alerts",
		"person_count", "detected_at", "created_at",
	}).AddRow(
		uuid.New().String(), "cam-1", "medium", `["Suspicious object: backpack (80%)"]`,
		0, time.Now(), time.Now(),
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("cam-1", 20).
		WillReturnRows(rows)

	frames, err := repo.ListRecentFrames(context.Background(), "cam-1", 0)

	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, models.ThreatMedium, frames[0].ThreatLevel)
	require.Len(t, frames[0].Alerts, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFramesBefore(t *testing.T) {
	db, mock, repo := setupMockFramesDB(t)
	defer db.Close()

	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectExec(`DELETE FROM detection_frames`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	deleted, err := repo.DeleteFramesBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
