package service

import (
	"errors"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/util"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const importHeader = "question,option1,option2,option3,option4,correct,marks,explanation\n"

func TestResolveCorrect(t *testing.T) {
	options := []string{"Paris", "London", "Berlin", "Rome"}
	tests := []struct {
		value string
		want  int
		ok    bool
	}{
		{"1", 0, true},
		{"3", 2, true},
		{" 4 ", 3, true},
		{"0", 0, false},
		{"9", 0, false},
		{"berlin", 2, true},
		{"ROME", 3, true},
		{"Madrid", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ResolveCorrect(tt.value, options)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ResolveCorrect(%q) = %d, %v; want %d, %v", tt.value, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveCorrectNumericOptions(t *testing.T) {
	options := []string{"8", "9", "10", "11"}
	tests := []struct {
		value string
		want  int
		ok    bool
	}{
		{"10", 2, true},
		{"11", 3, true},
		// 序号优先于文本
		{"3", 2, true},
		{"12", 0, false},
	}
	for _, tt := range tests {
		got, ok := ResolveCorrect(tt.value, options)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ResolveCorrect(%q) = %d, %v; want %d, %v", tt.value, got, ok, tt.want, tt.ok)
		}
	}
}

func TestImportCSV(t *testing.T) {
	env := newTestEnv(t)
	exam := env.exam("Geography", 30)

	csv := importHeader +
		"Capital of France?,Paris,London,Berlin,Rome,1,2,Paris is the capital\n" +
		"Capital of Germany?,Paris,London,Berlin,Rome,3,,\n" +
		"Capital of Italy?,Paris,London,Berlin,Rome,rome,,\n" +
		"Broken row,Paris,London,Berlin,Rome,9,,\n" +
		",Paris,London,Berlin,Rome,1,,\n" +
		"Missing option,Paris,,Berlin,Rome,1,,\n"

	result, err := env.importSvc.Import(env.ctx, exam.ID, "questions.csv", strings.NewReader(csv), false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Created != 3 || result.Skipped != 3 {
		t.Fatalf("created %d skipped %d, want 3 and 3", result.Created, result.Skipped)
	}
	if ids := env.cache.reset(); len(ids) != 1 || ids[0] != exam.ID {
		t.Errorf("invalidated = %v, want [%d]", ids, exam.ID)
	}
	wantRows := []int{5, 6, 7}
	for i, row := range result.SkippedRows {
		if row.Row != wantRows[i] {
			t.Errorf("skipped row %d = %d, want %d", i, row.Row, wantRows[i])
		}
	}

	qs, err := env.exams.ListQuestions(env.ctx, exam.ID)
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("got %d questions, want 3", len(qs))
	}
	wantCorrect := []string{"Paris", "Berlin", "Rome"}
	for i, q := range qs {
		if len(q.Choices) != 4 {
			t.Fatalf("question %d has %d choices", i, len(q.Choices))
		}
		c := q.CorrectChoice()
		if c == nil || c.Text != wantCorrect[i] {
			t.Errorf("question %d correct choice = %v, want %s", i, c, wantCorrect[i])
		}
	}
	if qs[0].Marks != 2 || qs[0].Explanation != "Paris is the capital" {
		t.Errorf("first question marks %d explanation %q", qs[0].Marks, qs[0].Explanation)
	}
	if qs[1].Marks != 1 {
		t.Errorf("default marks = %d, want 1", qs[1].Marks)
	}
}

func TestImportMissingHeaderChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	exam := env.exam("Geography", 30, 1)

	csv := "Question,option1,option2,option3,option4,correct\n" +
		"Capital of France?,Paris,London,Berlin,Rome,1\n"
	_, err := env.importSvc.Import(env.ctx, exam.ID, "questions.csv", strings.NewReader(csv), true)
	if !errors.Is(err, util.ErrImportHeader) {
		t.Fatalf("err = %v, want ErrImportHeader", err)
	}
	if n := env.countRows(&model.Question{}, "exam_id = ?", exam.ID); n != 1 {
		t.Errorf("question count = %d, want 1", n)
	}
	if ids := env.cache.reset(); len(ids) != 0 {
		t.Errorf("failed import invalidated %v", ids)
	}
}

func TestImportHeaderWithBOM(t *testing.T) {
	env := newTestEnv(t)
	exam := env.exam("Geography", 30)

	csv := "\ufeff" + importHeader + "Capital of France?,Paris,London,Berlin,Rome,1,,\n"
	result, err := env.importSvc.Import(env.ctx, exam.ID, "questions.csv", strings.NewReader(csv), false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("created = %d, want 1", result.Created)
	}
}

func TestImportClearExisting(t *testing.T) {
	env := newTestEnv(t)
	exam := env.exam("Geography", 30, 1, 1)
	u := env.student("alice")
	a := env.start(u.ID, exam.ID)
	env.answer(u.ID, a.ID, exam.Questions[0].ID, correctID(exam.Questions[0]))

	csv := importHeader + "Capital of France?,Paris,London,Berlin,Rome,1,,\n"
	result, err := env.importSvc.Import(env.ctx, exam.ID, "questions.csv", strings.NewReader(csv), true)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Cleared != 2 || result.Created != 1 {
		t.Errorf("cleared %d created %d, want 2 and 1", result.Cleared, result.Created)
	}
	if n := env.countRows(&model.Question{}, "exam_id = ?", exam.ID); n != 1 {
		t.Errorf("question count = %d, want 1", n)
	}
	if n := env.countRows(&model.Answer{}, "attempt_id = ?", a.ID); n != 0 {
		t.Errorf("answers left = %d, want 0", n)
	}
}

func TestImportXLSX(t *testing.T) {
	env := newTestEnv(t)
	exam := env.exam("Geography", 30)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"question", "option1", "option2", "option3", "option4", "correct", "marks"},
		{"Capital of Spain?", "Madrid", "Lisbon", "Paris", "Rome", "Madrid", 3},
		{"Capital of Portugal?", "Madrid", "Lisbon", "Paris", "Rome", 2},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	result, err := env.importSvc.Import(env.ctx, exam.ID, "Questions.XLSX", buf, false)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Created != 2 || result.Skipped != 0 {
		t.Fatalf("created %d skipped %d, want 2 and 0", result.Created, result.Skipped)
	}
	qs, _ := env.exams.ListQuestions(env.ctx, exam.ID)
	if qs[0].Marks != 3 || qs[0].CorrectChoice().Text != "Madrid" {
		t.Errorf("first question = %+v", qs[0])
	}
	if qs[1].CorrectChoice().Text != "Lisbon" {
		t.Errorf("second question correct = %s, want Lisbon", qs[1].CorrectChoice().Text)
	}
}

func TestImportRejects(t *testing.T) {
	env := newTestEnv(t)
	exam := env.exam("Geography", 30)

	_, err := env.importSvc.Import(env.ctx, exam.ID, "questions.txt", strings.NewReader(importHeader), false)
	if !errors.Is(err, util.ErrUnsupportedImport) {
		t.Errorf("txt err = %v, want ErrUnsupportedImport", err)
	}
	_, err = env.importSvc.Import(env.ctx, exam.ID, "questions.csv", strings.NewReader(""), false)
	if !errors.Is(err, util.ErrImportHeader) {
		t.Errorf("empty err = %v, want ErrImportHeader", err)
	}
	_, err = env.importSvc.Import(env.ctx, exam.ID+100, "questions.csv", strings.NewReader(importHeader), false)
	if !errors.Is(err, util.ErrExamNotFound) {
		t.Errorf("missing exam err = %v, want ErrExamNotFound", err)
	}
}
