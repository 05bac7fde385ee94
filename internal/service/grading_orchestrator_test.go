package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumark-api/internal/dto"
	"github.com/noah-isme/edumark-api/internal/repository"
	"github.com/noah-isme/edumark-api/pkg/grader"
	"github.com/noah-isme/edumark-api/pkg/materialize"
)

func TestGradingRunStoresUsableResult(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	local := filepath.Join(t.TempDir(), "page1.jpg")
	require.NoError(t, os.WriteFile(local, []byte("img"), 0o600))
	submission := seedSubmission(t, db, fixture, local)

	bridge := &stubBridge{result: grader.Result{
		Score:   floatPtr(8.5),
		Comment: "Most answers correct",
		Details: map[string]interface{}{"1": "correct"},
	}}
	events := &recordingPublisher{}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materialize.New(t.TempDir(), zerolog.Nop()), bridge, events, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID, FileRefs: []string{local}, AnswerKey: "1:A,2:C"})

	require.Equal(t, 1, bridge.callCount())
	require.Equal(t, []string{local}, bridge.files[0])
	require.Equal(t, "1:A,2:C", bridge.keys[0])

	stored := reloadSubmission(t, db, submission.ID)
	require.NotNil(t, stored.AIScore)
	require.InDelta(t, 8.5, *stored.AIScore, 0.0001)
	require.NotNil(t, stored.AIFeedback)
	require.Equal(t, "Most answers correct", *stored.AIFeedback)
	require.Equal(t, "correct", stored.AIDetail["1"])

	recorded := events.snapshot()
	require.Len(t, recorded, 1)
	require.Equal(t, dto.GradingEventScored, recorded[0].Type)
	require.Equal(t, fixture.student.ID, recorded[0].StudentID)
	require.Equal(t, fixture.teacher.ID, recorded[0].TeacherID)
}

func TestGradingRunDefaultsFeedbackAndDetail(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	submission := seedSubmission(t, db, fixture)

	bridge := &stubBridge{result: grader.Result{Score: floatPtr(0)}}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materialize.New(t.TempDir(), zerolog.Nop()), bridge, nil, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID})

	stored := reloadSubmission(t, db, submission.ID)
	require.NotNil(t, stored.AIScore)
	require.Zero(t, *stored.AIScore)
	require.NotNil(t, stored.AIFeedback)
	require.Empty(t, *stored.AIFeedback)
	require.NotNil(t, stored.AIDetail)
	require.Empty(t, stored.AIDetail)
}

func TestGradingRunSkipsTeacherGradedSubmission(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	submission := seedSubmission(t, db, fixture)
	require.NoError(t, db.Model(&submission).Updates(map[string]interface{}{"grade": 90, "graded_by": fixture.teacher.ID}).Error)

	bridge := &stubBridge{result: grader.Result{Score: floatPtr(10)}}
	events := &recordingPublisher{}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materialize.New(t.TempDir(), zerolog.Nop()), bridge, events, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID, AnswerKey: "k"})

	require.Zero(t, bridge.callCount())
	require.Nil(t, reloadSubmission(t, db, submission.ID).AIScore)
	recorded := events.snapshot()
	require.Len(t, recorded, 1)
	require.Equal(t, dto.GradingEventSkipped, recorded[0].Type)
}

func TestGradingRunGradeWithoutGraderIsNotAuthoritative(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	submission := seedSubmission(t, db, fixture)
	require.NoError(t, db.Model(&submission).Update("grade", 75).Error)

	bridge := &stubBridge{result: grader.Result{Score: floatPtr(6)}}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materialize.New(t.TempDir(), zerolog.Nop()), bridge, nil, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID, AnswerKey: "k"})

	require.Equal(t, 1, bridge.callCount())
	stored := reloadSubmission(t, db, submission.ID)
	require.NotNil(t, stored.AIScore)
	require.InDelta(t, 6, *stored.AIScore, 0.0001)
}

func TestGradingRunAbortsForMissingSubmission(t *testing.T) {
	db := setupServiceDB(t)

	bridge := &stubBridge{result: grader.Result{Score: floatPtr(1)}}
	events := &recordingPublisher{}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materialize.New(t.TempDir(), zerolog.Nop()), bridge, events, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: 4242, AnswerKey: "k"})

	require.Zero(t, bridge.callCount())
	require.Empty(t, events.snapshot())
}

func TestGradingRunLeavesSubmissionOnUnusableResult(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	submission := seedSubmission(t, db, fixture)

	bridge := &stubBridge{result: grader.Result{}}
	events := &recordingPublisher{}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materialize.New(t.TempDir(), zerolog.Nop()), bridge, events, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID, AnswerKey: "k"})

	stored := reloadSubmission(t, db, submission.ID)
	require.Nil(t, stored.AIScore)
	require.Nil(t, stored.AIFeedback)
	require.Equal(t, submission.UpdatedAt.Unix(), stored.UpdatedAt.Unix())
	recorded := events.snapshot()
	require.Len(t, recorded, 1)
	require.Equal(t, dto.GradingEventFailed, recorded[0].Type)
}

func TestGradingRunAbortsWhenMaterializationFails(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	submission := seedSubmission(t, db, fixture, "https://cdn.test/a.jpg")

	bridge := &stubBridge{result: grader.Result{Score: floatPtr(5)}}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), failingMaterializer{err: errors.New("download failed")}, bridge, nil, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID, FileRefs: []string{"https://cdn.test/a.jpg"}, AnswerKey: "k"})

	require.Zero(t, bridge.callCount())
	require.Nil(t, reloadSubmission(t, db, submission.ID).AIScore)
}

func TestGradingRunRemovesDownloadedFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(server.Close)

	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	remote := server.URL + "/page.jpg"
	submission := seedSubmission(t, db, fixture, remote)

	scratch := t.TempDir()
	seen := make([]bool, 0, 1)
	bridge := &stubBridge{
		result: grader.Result{Score: floatPtr(9)},
		onCalls: func(files []string) {
			for _, file := range files {
				_, err := os.Stat(file)
				seen = append(seen, err == nil)
			}
		},
	}
	materializer := materialize.New(scratch, zerolog.Nop(), materialize.WithHTTPClient(server.Client()))
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materializer, bridge, nil, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID, FileRefs: []string{remote}, AnswerKey: "k"})

	require.Equal(t, []bool{true}, seen)
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGradingRunDiscardsResultWhenTeacherGradesMidRun(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	submission := seedSubmission(t, db, fixture)

	bridge := &stubBridge{
		result: grader.Result{Score: floatPtr(3)},
		onCalls: func([]string) {
			now := time.Now()
			require.NoError(t, db.Model(&submission).Updates(map[string]interface{}{
				"grade":     88,
				"graded_by": fixture.teacher.ID,
				"graded_at": now,
			}).Error)
		},
	}
	events := &recordingPublisher{}
	orchestrator := NewGradingOrchestrator(repository.NewSubmissionRepository(db), materialize.New(t.TempDir(), zerolog.Nop()), bridge, events, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{SubmissionID: submission.ID, AnswerKey: "k"})

	stored := reloadSubmission(t, db, submission.ID)
	require.Nil(t, stored.AIScore)
	require.NotNil(t, stored.Grade)
	require.InDelta(t, 88, *stored.Grade, 0.0001)
	recorded := events.snapshot()
	require.Len(t, recorded, 1)
	require.Equal(t, dto.GradingEventSkipped, recorded[0].Type)
}

func TestGradingRunDiscardsResultWhenResubmittedMidRun(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	seeded := seedSubmission(t, db, fixture, "/old/page.jpg")
	submission := reloadSubmission(t, db, seeded.ID)
	repo := repository.NewSubmissionRepository(db)

	bridge := &stubBridge{
		result: grader.Result{Score: floatPtr(9)},
		onCalls: func([]string) {
			current := reloadSubmission(t, db, submission.ID)
			current.Content = "new"
			current.SetFileURLs([]string{"/new/page.jpg"})
			require.NoError(t, repo.Resubmit(context.Background(), &current))
		},
	}
	events := &recordingPublisher{}
	orchestrator := NewGradingOrchestrator(repo, materialize.New(t.TempDir(), zerolog.Nop()), bridge, events, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{
		SubmissionID: submission.ID,
		FileRefs:     []string{"/old/page.jpg"},
		AnswerKey:    "k",
		Revision:     submission.Revision,
	})

	stored := reloadSubmission(t, db, submission.ID)
	require.Equal(t, "new", stored.Content)
	require.Equal(t, []string{"/new/page.jpg"}, stored.FileURLList())
	require.Nil(t, stored.AIScore)
	recorded := events.snapshot()
	require.Len(t, recorded, 1)
	require.Equal(t, dto.GradingEventSkipped, recorded[0].Type)
}

func TestGradingRunDropsJobForOutdatedRevision(t *testing.T) {
	db := setupServiceDB(t)
	fixture := seedClassFixture(t, db)
	seeded := seedSubmission(t, db, fixture, "/old/page.jpg")
	repo := repository.NewSubmissionRepository(db)

	current := reloadSubmission(t, db, seeded.ID)
	outdated := current.Revision
	current.SetFileURLs([]string{"/new/page.jpg"})
	require.NoError(t, repo.Resubmit(context.Background(), &current))

	bridge := &stubBridge{result: grader.Result{Score: floatPtr(4)}}
	orchestrator := NewGradingOrchestrator(repo, materialize.New(t.TempDir(), zerolog.Nop()), bridge, nil, zerolog.Nop())

	orchestrator.Run(context.Background(), GradingJob{
		SubmissionID: seeded.ID,
		FileRefs:     []string{"/old/page.jpg"},
		AnswerKey:    "k",
		Revision:     outdated,
	})

	require.Zero(t, bridge.callCount())
	require.Nil(t, reloadSubmission(t, db, seeded.ID).AIScore)
}
