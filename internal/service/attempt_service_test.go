package service

import (
	"errors"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/util"
	"sync"
	"testing"
	"time"
)

func TestAttemptScoring(t *testing.T) {
	tests := []struct {
		name        string
		q2Correct   bool
		wantScore   int
		wantPct     float64
		wantPassed  bool
		wantCorrect int
	}{
		{"one right one wrong", false, 1, 33.33, false, 1},
		{"both right", true, 3, 100, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			alice := env.student("alice")
			exam := env.exam("Go basics", 30, 1, 2)
			q1, q2 := exam.Questions[0], exam.Questions[1]

			a := env.start(alice.ID, exam.ID)
			env.answer(alice.ID, a.ID, q1.ID, correctID(q1))
			if tt.q2Correct {
				env.answer(alice.ID, a.ID, q2.ID, correctID(q2))
			} else {
				env.answer(alice.ID, a.ID, q2.ID, wrongID(q2))
			}

			submitted, err := env.attemptSvc.Submit(env.ctx, alice.ID, a.ID)
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if submitted.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", submitted.Score, tt.wantScore)
			}

			res, err := env.attemptSvc.Result(env.ctx, alice.ID, a.ID)
			if err != nil {
				t.Fatalf("Result: %v", err)
			}
			if res.TotalMarks != 3 {
				t.Errorf("total marks = %d, want 3", res.TotalMarks)
			}
			if res.Percentage != tt.wantPct {
				t.Errorf("percentage = %v, want %v", res.Percentage, tt.wantPct)
			}
			if res.Passed != tt.wantPassed {
				t.Errorf("passed = %v, want %v", res.Passed, tt.wantPassed)
			}
			if res.CorrectAnswers != tt.wantCorrect {
				t.Errorf("correct answers = %d, want %d", res.CorrectAnswers, tt.wantCorrect)
			}
			if len(res.Review) != 2 || res.Review[0].CorrectChoiceID == nil {
				t.Fatalf("review missing correct choices: %+v", res.Review)
			}
		})
	}
}

func TestStartIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1, 1, 1)

	first, created, err := env.attemptSvc.Start(env.ctx, alice.ID, exam.ID)
	if err != nil || !created {
		t.Fatalf("first Start: created=%v err=%v", created, err)
	}
	second, created, err := env.attemptSvc.Start(env.ctx, alice.ID, exam.ID)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if created {
		t.Error("second Start reported a new attempt")
	}
	if second.ID != first.ID {
		t.Errorf("second Start returned attempt %d, want %d", second.ID, first.ID)
	}

	if n := env.countRows(&model.Attempt{}, "user_id = ? AND exam_id = ?", alice.ID, exam.ID); n != 1 {
		t.Errorf("attempt rows = %d, want 1", n)
	}
	if n := env.countRows(&model.Answer{}, "attempt_id = ?", first.ID); n != 3 {
		t.Errorf("seeded answers = %d, want 3", n)
	}
}

func TestConcurrentStartAndAnswer(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1)
	q := exam.Questions[0]

	const workers = 8
	var wg sync.WaitGroup
	ids := make(chan uint, workers)
	errs := make(chan error, 2*workers+1)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, _, err := env.attemptSvc.Start(env.ctx, alice.ID, exam.ID)
			if err != nil {
				errs <- err
				return
			}
			ids <- a.ID
		}()
	}
	wg.Wait()
	close(ids)

	var attemptID uint
	for id := range ids {
		if attemptID == 0 {
			attemptID = id
		} else if id != attemptID {
			t.Errorf("Start returned attempts %d and %d", attemptID, id)
		}
	}
	if attemptID == 0 {
		t.Fatalf("no Start succeeded: %v", <-errs)
	}
	if n := env.countRows(&model.Attempt{}, "user_id = ? AND exam_id = ?", alice.ID, exam.ID); n != 1 {
		t.Fatalf("attempt rows = %d, want 1", n)
	}

	// 同一道题并发改答案，同时交卷
	for i := 0; i < workers; i++ {
		choice := correctID(q)
		if i%2 == 1 {
			choice = wrongID(q)
		}
		wg.Add(1)
		go func(choice *uint) {
			defer wg.Done()
			if _, err := env.attemptSvc.SaveAnswer(env.ctx, alice.ID, attemptID, q.ID, choice); err != nil {
				errs <- err
			}
		}(choice)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := env.attemptSvc.Submit(env.ctx, alice.ID, attemptID); err != nil {
			errs <- err
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, util.ErrInvalidState) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if n := env.countRows(&model.Answer{}, "attempt_id = ? AND question_id = ?", attemptID, q.ID); n != 1 {
		t.Errorf("answer rows = %d, want 1", n)
	}
	a, err := env.attempts.FindByUserExam(env.ctx, alice.ID, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !a.IsSubmitted {
		t.Error("attempt not submitted")
	}
}

func TestStartRequiresAvailableExam(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")

	upcoming := env.exam("Upcoming", 30, 1)
	upcoming.StartTime = env.now.Add(time.Hour)
	if err := env.exams.Update(env.ctx, upcoming); err != nil {
		t.Fatal(err)
	}
	draft := env.exam("Draft", 30, 1)
	draft.IsPublished = false
	if err := env.exams.Update(env.ctx, draft); err != nil {
		t.Fatal(err)
	}

	if _, _, err := env.attemptSvc.Start(env.ctx, alice.ID, upcoming.ID); !errors.Is(err, util.ErrExamNotActive) {
		t.Errorf("upcoming exam: err = %v, want ErrExamNotActive", err)
	}
	if _, _, err := env.attemptSvc.Start(env.ctx, alice.ID, draft.ID); !errors.Is(err, util.ErrExamNotFound) {
		t.Errorf("draft exam: err = %v, want ErrExamNotFound", err)
	}
	if _, _, err := env.attemptSvc.Start(env.ctx, alice.ID, 9999); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("missing exam: err = %v, want not found", err)
	}
}

func TestStartAfterWindowReturnsExistingAttempt(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1)
	a := env.start(alice.ID, exam.ID)

	// 考试窗口和作答时长都已结束
	env.advance(48 * time.Hour)

	got, created, err := env.attemptSvc.Start(env.ctx, alice.ID, exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if created || got.ID != a.ID {
		t.Fatalf("Start returned attempt %d created=%v, want existing %d", got.ID, created, a.ID)
	}
	if !got.IsSubmitted {
		t.Error("expired attempt returned from Start was not auto-submitted")
	}
}

func TestStartAfterUnpublishReturnsExistingAttempt(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1)
	a := env.start(alice.ID, exam.ID)

	if _, err := env.examSvc.TogglePublish(env.ctx, exam.ID); err != nil {
		t.Fatalf("unpublish: %v", err)
	}

	got, created, err := env.attemptSvc.Start(env.ctx, alice.ID, exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if created || got.ID != a.ID {
		t.Fatalf("Start returned attempt %d created=%v, want existing %d", got.ID, created, a.ID)
	}
	if _, err := env.attemptSvc.Submit(env.ctx, alice.ID, a.ID); err != nil {
		t.Errorf("Submit after unpublish: %v", err)
	}

	bob := env.student("bob")
	if _, _, err := env.attemptSvc.Start(env.ctx, bob.ID, exam.ID); !errors.Is(err, util.ErrExamNotFound) {
		t.Errorf("new Start on unpublished exam: err = %v, want ErrExamNotFound", err)
	}
}

func TestSaveAnswerUpsertsInPlace(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1, 1)
	q := exam.Questions[0]
	a := env.start(alice.ID, exam.ID)

	env.answer(alice.ID, a.ID, q.ID, wrongID(q))
	env.answer(alice.ID, a.ID, q.ID, correctID(q))

	if n := env.countRows(&model.Answer{}, "attempt_id = ? AND question_id = ?", a.ID, q.ID); n != 1 {
		t.Fatalf("answer rows = %d, want 1", n)
	}
	ans, err := env.attempts.FindAnswer(env.ctx, a.ID, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ans.SelectedChoiceID == nil || *ans.SelectedChoiceID != *correctID(q) {
		t.Errorf("selected = %v, want %d", ans.SelectedChoiceID, *correctID(q))
	}

	env.answer(alice.ID, a.ID, q.ID, nil)
	ans, err = env.attempts.FindAnswer(env.ctx, a.ID, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ans.SelectedChoiceID != nil {
		t.Errorf("cleared answer still selects %d", *ans.SelectedChoiceID)
	}
}

func TestSaveAnswerValidatesChoice(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1, 1)
	other := env.exam("Other", 30, 1)
	q1, q2 := exam.Questions[0], exam.Questions[1]
	a := env.start(alice.ID, exam.ID)
	missing := uint(99999)

	tests := []struct {
		name       string
		questionID uint
		choiceID   *uint
		want       error
	}{
		{"choice of another question", q1.ID, correctID(q2), util.ErrChoiceMismatch},
		{"question of another exam", other.Questions[0].ID, correctID(other.Questions[0]), util.ErrQuestionNotFound},
		{"unknown choice", q1.ID, &missing, util.ErrChoiceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.attemptSvc.SaveAnswer(env.ctx, alice.ID, a.ID, tt.questionID, tt.choiceID)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	ans, err := env.attempts.FindAnswer(env.ctx, a.ID, q1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ans.SelectedChoiceID != nil {
		t.Errorf("rejected save mutated answer: %d", *ans.SelectedChoiceID)
	}
}

func TestReadAutoSubmitsExpiredAttempt(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Timed", 30, 1, 2)
	a := env.start(alice.ID, exam.ID)
	env.answer(alice.ID, a.ID, exam.Questions[0].ID, correctID(exam.Questions[0]))

	env.advance(31 * time.Minute)

	got, err := env.attemptSvc.Get(env.ctx, alice.ID, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsSubmitted {
		t.Fatal("expired attempt not submitted on read")
	}
	if got.EndTime == nil || !got.EndTime.Equal(env.now) {
		t.Errorf("end time = %v, want %v", got.EndTime, env.now)
	}
	if got.Score != 1 {
		t.Errorf("score = %d, want 1", got.Score)
	}
	if r := got.TimeRemaining(env.now); r != 0 {
		t.Errorf("time remaining = %d, want 0", r)
	}

	stored, err := env.attempts.FindByUserExam(env.ctx, alice.ID, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.IsSubmitted || stored.Score != 1 {
		t.Errorf("stored attempt = submitted:%v score:%d, want submitted with score 1", stored.IsSubmitted, stored.Score)
	}
}

func TestAttemptNotExpiredAtExactDeadline(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Timed", 30, 1)
	a := env.start(alice.ID, exam.ID)

	env.advance(30 * time.Minute)
	got, err := env.attemptSvc.Get(env.ctx, alice.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsSubmitted {
		t.Error("attempt submitted exactly at its deadline")
	}
}

func TestSaveAnswerOnSubmittedAttempt(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1)
	q := exam.Questions[0]
	a := env.start(alice.ID, exam.ID)
	env.answer(alice.ID, a.ID, q.ID, wrongID(q))

	if _, err := env.attemptSvc.Submit(env.ctx, alice.ID, a.ID); err != nil {
		t.Fatal(err)
	}

	_, err := env.attemptSvc.SaveAnswer(env.ctx, alice.ID, a.ID, q.ID, correctID(q))
	if !errors.Is(err, util.ErrAttemptSubmitted) || !errors.Is(err, util.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrAttemptSubmitted", err)
	}
	ans, err := env.attempts.FindAnswer(env.ctx, a.ID, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ans.SelectedChoiceID == nil || *ans.SelectedChoiceID != *wrongID(q) {
		t.Error("answer mutated after submission")
	}
}

func TestSaveAnswerAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Timed", 10, 1)
	q := exam.Questions[0]
	a := env.start(alice.ID, exam.ID)

	env.advance(11 * time.Minute)
	_, err := env.attemptSvc.SaveAnswer(env.ctx, alice.ID, a.ID, q.ID, correctID(q))
	if !errors.Is(err, util.ErrAttemptExpired) {
		t.Fatalf("err = %v, want ErrAttemptExpired", err)
	}

	stored, err := env.attempts.FindByUserExam(env.ctx, alice.ID, exam.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.IsSubmitted || stored.Score != 0 {
		t.Errorf("stored = submitted:%v score:%d, want submitted with score 0", stored.IsSubmitted, stored.Score)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 2)
	q := exam.Questions[0]
	a := env.start(alice.ID, exam.ID)
	env.answer(alice.ID, a.ID, q.ID, correctID(q))

	first, err := env.attemptSvc.Submit(env.ctx, alice.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	env.advance(5 * time.Minute)
	second, err := env.attemptSvc.Submit(env.ctx, alice.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Score != first.Score || second.Score != 2 {
		t.Errorf("scores = %d, %d, want 2 both times", first.Score, second.Score)
	}
	if second.EndTime == nil || !second.EndTime.Equal(*first.EndTime) {
		t.Errorf("end time moved from %v to %v", first.EndTime, second.EndTime)
	}
}

func TestAttemptIsPrivateToOwner(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	bob := env.student("bob")
	exam := env.exam("Go basics", 30, 1)
	a := env.start(alice.ID, exam.ID)

	if _, err := env.attemptSvc.Get(env.ctx, bob.ID, a.ID); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("Get by other student: err = %v, want ErrAttemptNotFound", err)
	}
	if _, err := env.attemptSvc.Submit(env.ctx, bob.ID, a.ID); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("Submit by other student: err = %v, want ErrAttemptNotFound", err)
	}
	if _, err := env.attemptSvc.Result(env.ctx, bob.ID, a.ID); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("Result by other student: err = %v, want ErrAttemptNotFound", err)
	}
}

func TestTakeExam(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1, 2, 3)
	a := env.start(alice.ID, exam.ID)
	env.answer(alice.ID, a.ID, exam.Questions[1].ID, wrongID(exam.Questions[1]))

	view, err := env.attemptSvc.TakeExam(env.ctx, alice.ID, exam.ID, 2)
	if err != nil {
		t.Fatalf("TakeExam: %v", err)
	}
	if view.Index != 2 || view.TotalQuestions != 3 {
		t.Errorf("index/total = %d/%d, want 2/3", view.Index, view.TotalQuestions)
	}
	if view.Question.ID != exam.Questions[1].ID {
		t.Errorf("question = %d, want %d", view.Question.ID, exam.Questions[1].ID)
	}
	if view.SelectedChoiceID == nil || *view.SelectedChoiceID != *wrongID(exam.Questions[1]) {
		t.Errorf("selected = %v, want saved choice", view.SelectedChoiceID)
	}
	if len(view.Progress) != 3 {
		t.Errorf("progress entries = %d, want 3", len(view.Progress))
	}
	if view.TimeRemaining != 30*60 {
		t.Errorf("time remaining = %d, want %d", view.TimeRemaining, 30*60)
	}

	view, err = env.attemptSvc.TakeExam(env.ctx, alice.ID, exam.ID, 42)
	if err != nil {
		t.Fatal(err)
	}
	if view.Index != 1 {
		t.Errorf("out of range index resolved to %d, want 1", view.Index)
	}

	if _, err := env.attemptSvc.Submit(env.ctx, alice.ID, a.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.attemptSvc.TakeExam(env.ctx, alice.ID, exam.ID, 1)
	var closed *ClosedAttemptError
	if !errors.As(err, &closed) || closed.AttemptID != a.ID {
		t.Fatalf("err = %v, want ClosedAttemptError for %d", err, a.ID)
	}
	if !errors.Is(err, util.ErrAttemptSubmitted) {
		t.Error("ClosedAttemptError does not unwrap to ErrAttemptSubmitted")
	}
}

func TestTakeExamWithoutQuestions(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Empty", 30)
	env.start(alice.ID, exam.ID)

	if _, err := env.attemptSvc.TakeExam(env.ctx, alice.ID, exam.ID, 1); !errors.Is(err, util.ErrExamHasNoQuestions) {
		t.Errorf("err = %v, want ErrExamHasNoQuestions", err)
	}
	if _, err := env.attemptSvc.TakeExam(env.ctx, alice.ID, 12345, 1); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("no attempt: err = %v, want ErrAttemptNotFound", err)
	}
}

func TestResultRequiresSubmission(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Go basics", 30, 1)
	a := env.start(alice.ID, exam.ID)

	if _, err := env.attemptSvc.Result(env.ctx, alice.ID, a.ID); !errors.Is(err, util.ErrAttemptInProgress) {
		t.Errorf("err = %v, want ErrAttemptInProgress", err)
	}
}

func TestResultJustBelowPassMark(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	exam := env.exam("Boundary", 30, 23999, 16001)
	a := env.start(alice.ID, exam.ID)
	env.answer(alice.ID, a.ID, exam.Questions[0].ID, correctID(exam.Questions[0]))
	env.answer(alice.ID, a.ID, exam.Questions[1].ID, wrongID(exam.Questions[1]))
	if _, err := env.attemptSvc.Submit(env.ctx, alice.ID, a.ID); err != nil {
		t.Fatal(err)
	}

	res, err := env.attemptSvc.Result(env.ctx, alice.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Percentage != 60 || res.Passed {
		t.Errorf("result = %v%% passed=%v, want 60%% not passed", res.Percentage, res.Passed)
	}
}

func TestListMyResults(t *testing.T) {
	env := newTestEnv(t)
	alice := env.student("alice")
	first := env.exam("First", 30, 1, 1)
	second := env.exam("Second", 10, 4)
	third := env.exam("Third", 30, 1)

	a1 := env.start(alice.ID, first.ID)
	env.answer(alice.ID, a1.ID, first.Questions[0].ID, correctID(first.Questions[0]))
	if _, err := env.attemptSvc.Submit(env.ctx, alice.ID, a1.ID); err != nil {
		t.Fatal(err)
	}

	a2 := env.start(alice.ID, second.ID)
	env.answer(alice.ID, a2.ID, second.Questions[0].ID, correctID(second.Questions[0]))
	env.start(alice.ID, third.ID)

	// Second 的作答超时，Third 仍在进行
	env.advance(20 * time.Minute)

	results, err := env.attemptSvc.ListMyResults(env.ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].ExamID != second.ID {
		t.Errorf("most recent result is exam %d, want %d", results[0].ExamID, second.ID)
	}
	if results[0].Percentage != 100 || !results[0].Passed {
		t.Errorf("auto-submitted result = %+v, want 100%% passed", results[0])
	}
	if results[1].Percentage != 50 || results[1].Passed {
		t.Errorf("first result = %+v, want 50%% failed", results[1])
	}
}
