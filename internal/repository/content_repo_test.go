package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

func TestCommentRepo_Insert_AssignsID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Now()
	mock.ExpectQuery(`INSERT INTO video_comments`).
		WithArgs(pgxmock.AnyArg(), "v1", userID, "Great shiur").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	c := &model.Comment{VideoID: "v1", UserID: userID, Content: "Great shiur"}
	require.NoError(t, NewCommentRepo(mock).Insert(context.Background(), c))
	assert.Len(t, c.ID, 36)
	assert.Equal(t, created, c.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepo_Insert_UnknownVideo(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO video_comments`).
		WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})

	err = NewCommentRepo(mock).Insert(context.Background(), &model.Comment{VideoID: "nope", UserID: userID})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommentRepo_ListByVideo_SkipsDeleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`WHERE cm.video_id = \$1 AND cm.deleted_at IS NULL`).
		WithArgs("v1", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "video_id", "user_id", "author", "content", "created_at"}))

	comments, err := NewCommentRepo(mock).ListByVideo(context.Background(), "v1", 0)
	require.NoError(t, err)
	assert.NotNil(t, comments)
	assert.Empty(t, comments)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepo_InsertAndResolve(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewReportRepo(mock)
	mock.ExpectQuery(`INSERT INTO video_reports`).
		WithArgs(pgxmock.AnyArg(), "v1", pgxmock.AnyArg(), "a@example.com", "Not appropriate", model.ReportOpen, "iphash").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectExec(`UPDATE video_reports SET status = \$2 WHERE id = \$1 AND status = \$3`).
		WithArgs(pgxmock.AnyArg(), model.ReportResolved, model.ReportOpen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rep := &model.Report{VideoID: "v1", Email: "a@example.com", Message: "Not appropriate", IPHash: "iphash"}
	require.NoError(t, repo.Insert(context.Background(), rep))
	assert.Equal(t, model.ReportOpen, rep.Status)
	require.NoError(t, repo.Resolve(context.Background(), rep.ID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTestimonialRepo_ListApprovedOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM testimonials\s+WHERE approved OR NOT \$1`).
		WithArgs(true, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "name", "content", "approved", "created_at"}).
			AddRow("t1", userID, "Chaim", "Finally a clean site", true, time.Now()))

	list, err := NewTestimonialRepo(mock).List(context.Background(), true, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Approved)
	require.NoError(t, mock.ExpectationsWereMet())
}
