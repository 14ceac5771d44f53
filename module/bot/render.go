package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"TGModule/logger"
	"TGModule/service/mainapi"
	"TGModule/service/storage"
	"TGModule/tools"
	"TGModule/tools/errs"
)

// maxMessageLen is the chunking threshold for long list replies; the
// platform rejects messages past ~4k characters.
const maxMessageLen = 3500

func (b *Bot) saveQuiet(ctx context.Context, chatID int64, s storage.Session) {
	if err := b.store.Save(ctx, chatID, s); err != nil {
		logger.Warn("session save failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// replyStatus sends the canned reply for a non-2xx response and
// reports whether the caller should bail out. notFound names the
// domain object for the 404 branch; empty disables it.
func (b *Bot) replyStatus(chatID int64, r mainapi.Response, op, notFound string) bool {
	switch {
	case r.OK():
		return false
	case r.Status == http.StatusForbidden:
		b.send.Send(chatID, errs.ErrAccessDenied.Reply)
	case r.Status == http.StatusNotFound && notFound != "":
		b.send.Send(chatID, errs.NotFound(notFound).Reply)
	default:
		b.send.Send(chatID, errs.Transient(op, r.Status).Reply)
	}
	return true
}

type apiUser struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	IsBlocked bool   `json:"is_blocked"`
}

type apiUserData struct {
	apiUser
	CoursesCount  int `json:"courses_count"`
	AttemptsCount int `json:"attempts_count"`
}

type apiCourse struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type apiTest struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	IsActive bool   `json:"is_active"`
}

type apiAnswer struct {
	ID         int `json:"id"`
	QuestionID int `json:"question_id"`
}

type apiQuestion struct {
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// ---- account ----

// handleMe resolves the caller's id via /api/users/me, then renders
// /api/users/{id}/data.
func (b *Bot) handleMe(ctx context.Context, chatID int64, s *storage.Session) {
	userID, ok := b.resolveSelfID(ctx, chatID, s)
	if !ok {
		return
	}

	d := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Get(ctx, "/api/users/"+strconv.Itoa(userID)+"/data", bearer)
	})
	if b.replyStatus(chatID, d, "Fetching user data", "User") {
		return
	}
	var u apiUserData
	if err := d.JSON(&u); err != nil {
		b.send.Send(chatID, "Could not parse the /api/users/{id}/data response")
		return
	}
	blocked := "no"
	if u.IsBlocked {
		blocked = "yes"
	}
	b.send.Send(chatID, fmt.Sprintf(
		"User #%d\nUsername: %s\nFull name: %s\nEmail: %s\nBlocked: %s\nCourses: %d\nAttempts: %d",
		u.ID, u.Username, u.FullName, u.Email, blocked, u.CoursesCount, u.AttemptsCount))
}

func (b *Bot) resolveSelfID(ctx context.Context, chatID int64, s *storage.Session) (int, bool) {
	me := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Get(ctx, "/api/users/me", bearer)
	})
	if b.replyStatus(chatID, me, "Fetching user", "User") {
		return 0, false
	}
	var u apiUser
	if err := me.JSON(&u); err != nil || u.ID <= 0 {
		b.send.Send(chatID, "Could not determine your user id.")
		return 0, false
	}
	return u.ID, true
}

func (b *Bot) handleSetFullName(ctx context.Context, chatID int64, s *storage.Session, payload string) {
	fullName := strings.TrimSpace(payload)
	if fullName == "" {
		b.send.Send(chatID, "Usage: /set_full_name <full_name>")
		return
	}
	userID, ok := b.resolveSelfID(ctx, chatID, s)
	if !ok {
		return
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Patch(ctx, "/api/users/"+strconv.Itoa(userID)+"/full-name", bearer,
			map[string]string{"full_name": fullName})
	})
	if b.replyStatus(chatID, r, "Updating full name", "User") {
		return
	}
	b.send.Send(chatID, "✅ Full name updated.")
}

// ---- admin ----

func (b *Bot) handleUsers(ctx context.Context, chatID int64, s *storage.Session) {
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Get(ctx, "/api/users", bearer)
	})
	if b.replyStatus(chatID, r, "Fetching users", "Users") {
		return
	}
	var users []apiUser
	if err := r.JSON(&users); err != nil {
		b.send.Send(chatID, "Could not parse the /api/users response")
		return
	}
	if len(users) == 0 {
		b.send.Send(chatID, "The user list is empty.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Users:\n")
	for _, u := range users {
		sb.WriteString("#" + strconv.Itoa(u.ID) + " " + u.Username)
		if u.FullName != "" {
			sb.WriteString(" (" + u.FullName + ")")
		}
		if u.IsBlocked {
			sb.WriteString(" [blocked]")
		}
		sb.WriteByte('\n')
	}
	b.sendChunked(chatID, sb.String())
}

// sendChunked splits long output on line boundaries so every message
// stays under the platform limit.
func (b *Bot) sendChunked(chatID int64, msg string) {
	if len(msg) <= maxMessageLen {
		b.send.Send(chatID, msg)
		return
	}
	var chunk strings.Builder
	for _, line := range strings.Split(strings.TrimRight(msg, "\n"), "\n") {
		if chunk.Len()+len(line)+1 > maxMessageLen {
			b.send.Send(chatID, chunk.String())
			chunk.Reset()
		}
		chunk.WriteString(line)
		chunk.WriteByte('\n')
	}
	if chunk.Len() > 0 {
		b.send.Send(chatID, chunk.String())
	}
}

func (b *Bot) handleBlock(ctx context.Context, chatID int64, s *storage.Session, payload string, block bool) {
	usage := "/unban <user_id>"
	if block {
		usage = "/ban <user_id>"
	}
	fields := strings.Fields(payload)
	if len(fields) < 1 {
		b.send.Send(chatID, "Usage: "+usage)
		return
	}
	userID, err := strconv.Atoi(fields[0])
	if err != nil {
		b.send.Send(chatID, "user_id must be a number.")
		return
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.PostJSON(ctx, "/api/users/"+strconv.Itoa(userID)+"/block", bearer,
			map[string]bool{"is_blocked": block})
	})
	if b.replyStatus(chatID, r, "Blocking user", "User") {
		return
	}
	if block {
		b.send.Send(chatID, "✅ User blocked.")
	} else {
		b.send.Send(chatID, "✅ User unblocked.")
	}
}

// ---- course / test / question CRUD ----

func (b *Bot) handleCourseCreate(ctx context.Context, chatID int64, s *storage.Session, payload string) {
	parts := tools.SplitPipe(payload)
	if len(parts) == 0 || parts[0] == "" {
		b.send.Send(chatID, "Usage: /course_create <title> | <description>")
		return
	}
	title := parts[0]
	desc := ""
	if len(parts) > 1 {
		desc = parts[1]
	}
	// this endpoint takes form params, not JSON
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.PostForm(ctx, "/api/courses", bearer,
			url.Values{"title": {title}, "description": {desc}})
	})
	if b.replyStatus(chatID, r, "Creating course", "") {
		return
	}
	var c apiCourse
	if err := r.JSON(&c); err != nil {
		b.send.Send(chatID, "Course created.")
		return
	}
	b.send.Send(chatID, fmt.Sprintf("✅ Course created: #%d %s", c.ID, c.Title))
}

func (b *Bot) handleCourseDelete(ctx context.Context, chatID int64, s *storage.Session, payload string) {
	fields := strings.Fields(payload)
	if len(fields) < 1 {
		b.send.Send(chatID, "Usage: /course_delete <course_id>")
		return
	}
	courseID, err := strconv.Atoi(fields[0])
	if err != nil {
		b.send.Send(chatID, "course_id must be a number.")
		return
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Delete(ctx, "/api/courses/"+strconv.Itoa(courseID), bearer)
	})
	if b.replyStatus(chatID, r, "Deleting course", "Course") {
		return
	}
	b.send.Send(chatID, "✅ Course deleted (soft).")
}

func (b *Bot) handleTestCreate(ctx context.Context, chatID int64, s *storage.Session, payload string) {
	parts := tools.SplitPipe(payload)
	if len(parts) < 3 {
		b.send.Send(chatID, "Usage: /test_create <course_id> | <title> | <is_active 0|1>")
		return
	}
	courseID, err := strconv.Atoi(parts[0])
	if err != nil {
		b.send.Send(chatID, "course_id must be a number.")
		return
	}
	isActive, ok := tools.ParseBoolFlag(parts[2])
	if !ok {
		b.send.Send(chatID, "is_active must be 0/1 or true/false.")
		return
	}
	body := map[string]interface{}{"title": parts[1], "is_active": isActive}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.PostJSON(ctx, "/api/courses/"+strconv.Itoa(courseID)+"/tests", bearer, body)
	})
	if b.replyStatus(chatID, r, "Creating test", "Course") {
		return
	}
	var t apiTest
	if err := r.JSON(&t); err != nil {
		b.send.Send(chatID, "Test created.")
		return
	}
	b.send.Send(chatID, fmt.Sprintf("✅ Test created: #%d %s", t.ID, t.Title))
}

func (b *Bot) handleTestDelete(ctx context.Context, chatID int64, s *storage.Session, payload string) {
	fields := strings.Fields(payload)
	if len(fields) < 2 {
		b.send.Send(chatID, "Usage: /test_delete <course_id> <test_id>")
		return
	}
	courseID, err1 := strconv.Atoi(fields[0])
	testID, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		b.send.Send(chatID, "course_id and test_id must be numbers.")
		return
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Delete(ctx, "/api/courses/"+strconv.Itoa(courseID)+"/tests/"+strconv.Itoa(testID), bearer)
	})
	if b.replyStatus(chatID, r, "Deleting test", "Test") {
		return
	}
	b.send.Send(chatID, "✅ Test deleted (soft).")
}

func (b *Bot) handleQuestionCreate(ctx context.Context, chatID int64, s *storage.Session, payload string) {
	parts := tools.SplitPipe(payload)
	if len(parts) < 5 {
		b.send.Send(chatID, "Usage: /question_create <test_id|0> | <title> | <text> | <opt1;opt2> | <correct_index>")
		return
	}
	testID, err := strconv.Atoi(parts[0])
	if err != nil {
		b.send.Send(chatID, "test_id must be a number (0 for unattached).")
		return
	}
	correctIndex, err := strconv.Atoi(parts[4])
	if err != nil {
		b.send.Send(chatID, "correct_index must be a number.")
		return
	}
	var options []string
	for _, o := range strings.Split(parts[3], ";") {
		if t := strings.TrimSpace(o); t != "" {
			options = append(options, t)
		}
	}
	if len(options) == 0 {
		b.send.Send(chatID, "At least one answer option is required.")
		return
	}
	if correctIndex < 0 || correctIndex >= len(options) {
		b.send.Send(chatID, "correct_index is out of range.")
		return
	}

	body := map[string]interface{}{
		"title":         parts[1],
		"text":          parts[2],
		"options":       options,
		"correct_index": correctIndex,
	}
	if testID > 0 {
		body["test_id"] = testID
	} else {
		body["test_id"] = nil
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.PostJSON(ctx, "/api/questions", bearer, body)
	})
	if r.Status == http.StatusNotFound && testID > 0 {
		b.send.Send(chatID, errs.NotFound("Test").Reply)
		return
	}
	if b.replyStatus(chatID, r, "Creating question", "") {
		return
	}
	b.send.Send(chatID, "✅ Question created.")
}

// ---- course browsing and attempts ----

func (b *Bot) showCourses(ctx context.Context, chatID int64, s *storage.Session) {
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Get(ctx, "/api/courses", bearer)
	})
	if b.replyStatus(chatID, r, "Fetching courses", "") {
		return
	}
	var courses []apiCourse
	if err := r.JSON(&courses); err != nil {
		b.send.Send(chatID, "Could not parse the /api/courses response")
		return
	}
	if len(courses) == 0 {
		b.send.Send(chatID, "No courses yet.")
		return
	}
	btns := make([]Button, 0, len(courses))
	for _, c := range courses {
		btns = append(btns, Button{
			Text: fmt.Sprintf("%s (#%d)", c.Title, c.ID),
			Data: "course:" + strconv.Itoa(c.ID),
		})
	}
	b.send.SendKeyboard(chatID, "Pick a course:", btns)
}

func (b *Bot) showCourseTests(ctx context.Context, chatID int64, s *storage.Session) {
	if s.CurrentCourseID < 0 {
		b.send.Send(chatID, "Pick a course first: /courses")
		return
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Get(ctx, "/api/courses/"+strconv.Itoa(s.CurrentCourseID)+"/tests", bearer)
	})
	if b.replyStatus(chatID, r, "Fetching tests", "") {
		return
	}
	var tests []apiTest
	if err := r.JSON(&tests); err != nil {
		b.send.Send(chatID, "Could not parse the tests response")
		return
	}
	var btns []Button
	for _, t := range tests {
		if !t.IsActive {
			continue
		}
		btns = append(btns, Button{Text: t.Title + " ✅", Data: "test:" + strconv.Itoa(t.ID)})
	}
	btns = append(btns, Button{Text: "⬅️ Back", Data: "back:courses"})
	b.send.SendKeyboard(chatID, "Course tests (active only):", btns)
}

func (b *Bot) startAttempt(ctx context.Context, chatID int64, s *storage.Session) {
	if s.CurrentTestID < 0 {
		return
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.PostJSON(ctx, "/api/attempts/tests/"+strconv.Itoa(s.CurrentTestID), bearer, nil)
	})
	if b.replyStatus(chatID, r, "Starting attempt", "") {
		return
	}
	var attempt struct {
		ID int `json:"id"`
	}
	if err := r.JSON(&attempt); err != nil || attempt.ID <= 0 {
		b.send.Send(chatID, "Could not parse the attempts response")
		return
	}
	s.CurrentAttemptID = attempt.ID
	s.CurrentAnswerIndex = 0
	b.saveQuiet(ctx, chatID, *s)
	b.send.Send(chatID, "📝 Attempt started. Loading the question...")
	b.showCurrentQuestion(ctx, chatID, s)
}

// showCurrentQuestion renders the answer at CurrentAnswerIndex, or the
// finish button once the index passes the end of the attempt.
func (b *Bot) showCurrentQuestion(ctx context.Context, chatID int64, s *storage.Session) {
	if s.CurrentAttemptID < 0 {
		return
	}
	rAns := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Get(ctx, "/api/answers/attempts/"+strconv.Itoa(s.CurrentAttemptID), bearer)
	})
	if b.replyStatus(chatID, rAns, "Fetching attempt answers", "") {
		return
	}
	var answers []apiAnswer
	if err := rAns.JSON(&answers); err != nil {
		b.send.Send(chatID, "Could not parse the answers response")
		return
	}
	if len(answers) == 0 {
		b.send.Send(chatID, "This attempt has no questions.")
		return
	}

	if s.CurrentAnswerIndex >= len(answers) {
		b.send.SendKeyboard(chatID, "No more questions.", []Button{
			{Text: "🏁 Finish attempt", Data: "finish:" + strconv.Itoa(s.CurrentAttemptID)},
		})
		return
	}

	a := answers[s.CurrentAnswerIndex]
	if a.ID <= 0 || a.QuestionID <= 0 {
		b.send.Send(chatID, "Malformed question data.")
		return
	}

	rQ := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Get(ctx, "/api/questions/"+strconv.Itoa(a.QuestionID), bearer)
	})
	if b.replyStatus(chatID, rQ, "Fetching question", "Question") {
		return
	}
	var q apiQuestion
	if err := rQ.JSON(&q); err != nil {
		b.send.Send(chatID, "Could not parse the question response")
		return
	}
	if len(q.Options) == 0 {
		b.send.Send(chatID, "The question has no options.")
		return
	}

	btns := make([]Button, 0, len(q.Options))
	for idx, opt := range q.Options {
		btns = append(btns, Button{
			Text: opt,
			Data: fmt.Sprintf("ans:%d:%d", a.ID, idx),
		})
	}
	title := q.Title
	if title == "" {
		title = "Question"
	}
	text := fmt.Sprintf("(%d/%d) %s\n\n%s", s.CurrentAnswerIndex+1, len(answers), title, q.Text)
	b.send.SendKeyboard(chatID, text, btns)
}

func (b *Bot) handleAnswer(ctx context.Context, chatID int64, s *storage.Session, data string) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return
	}
	answerID, err1 := strconv.Atoi(parts[1])
	value, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return
	}

	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.Patch(ctx, "/api/answers/"+strconv.Itoa(answerID), bearer,
			map[string]int{"value": value})
	})
	if b.replyStatus(chatID, r, "Saving answer", "") {
		return
	}

	s.CurrentAnswerIndex++
	b.saveQuiet(ctx, chatID, *s)
	b.showCurrentQuestion(ctx, chatID, s)
}

func (b *Bot) finishAttempt(ctx context.Context, chatID int64, s *storage.Session) {
	if s.CurrentAttemptID < 0 {
		return
	}
	r := b.callAuthed(ctx, chatID, s, func(bearer string) mainapi.Response {
		return b.api.PostJSON(ctx, "/api/attempts/"+strconv.Itoa(s.CurrentAttemptID)+"/finish", bearer, nil)
	})
	if b.replyStatus(chatID, r, "Finishing attempt", "") {
		return
	}

	var res struct {
		Score float64 `json:"score"`
	}
	if err := r.JSON(&res); err != nil {
		b.send.Send(chatID, "Attempt finished.")
	} else {
		b.send.Send(chatID, fmt.Sprintf("🏁 Attempt finished. Score: %g", res.Score))
	}

	s.ResetAttempt()
	b.saveQuiet(ctx, chatID, *s)
}
