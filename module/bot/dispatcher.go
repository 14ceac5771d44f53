package bot

import (
	"context"
	"strconv"
	"strings"

	"TGModule/service/storage"
	"TGModule/tools"
)

const helpText = `---- Account ----
/login github|yandex|code - sign in
/logout [all=true] - sign out
/me - my profile
/set_full_name <full_name> - change your full name

---- Courses ----
/courses - list courses
/course_create <title> | <description>
/course_delete <course_id>

---- Tests ----
/test_create <course_id> | <title> | <is_active 0|1>
/test_delete <course_id> <test_id>

---- Questions ----
/question_create <test_id|0> | <title> | <text> | <opt1;opt2;opt3> | <correct_index>

---- Admin ----
/users - list users
/ban <user_id> - block a user
/unban <user_id> - unblock a user

---- Other ----
/help - this help
`

func containsAllFlag(payload string) bool {
	return strings.Contains(payload, "all=true")
}

// HandleCommand routes one inbound text event. Non-command text is
// ignored; unknown commands get the canned reply.
func (b *Bot) HandleCommand(ctx context.Context, chatID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '/' {
		return
	}
	cmd, _, _ := strings.Cut(text, " ")
	// group chats address commands as /cmd@BotName
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	payload := tools.CommandPayload(text)

	switch cmd {
	case "/start":
		b.handleStart(ctx, chatID)
	case "/help":
		b.send.Send(chatID, helpText)
	case "/login":
		fields := strings.Fields(text)
		if len(fields) < 2 {
			b.send.Send(chatID, "Usage: /login github|yandex|code")
			return
		}
		b.startLogin(ctx, chatID, fields[1])
	case "/logout":
		b.logout(ctx, chatID, payload)

	case "/courses":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.showCourses(ctx, chatID, s) })
	case "/me":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleMe(ctx, chatID, s) })
	case "/set_full_name":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleSetFullName(ctx, chatID, s, payload) })
	case "/users":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleUsers(ctx, chatID, s) })
	case "/ban":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleBlock(ctx, chatID, s, payload, true) })
	case "/unban":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleBlock(ctx, chatID, s, payload, false) })
	case "/course_create":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleCourseCreate(ctx, chatID, s, payload) })
	case "/course_delete":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleCourseDelete(ctx, chatID, s, payload) })
	case "/test_create":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleTestCreate(ctx, chatID, s, payload) })
	case "/test_delete":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleTestDelete(ctx, chatID, s, payload) })
	case "/question_create":
		b.authGated(ctx, chatID, func(s *storage.Session) { b.handleQuestionCreate(ctx, chatID, s, payload) })

	default:
		b.send.Send(chatID, "No such command. /start")
	}
}

// authGated loads the session, runs it through the EnsureAuth gate and
// persists whatever the gate changed before invoking the handler.
func (b *Bot) authGated(ctx context.Context, chatID int64, fn func(s *storage.Session)) {
	s := b.store.Load(ctx, chatID)
	if !b.EnsureAuth(ctx, chatID, &s) {
		return
	}
	fn(&s)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	s := b.store.Load(ctx, chatID)
	if s.IsAuth() {
		b.send.Send(chatID, "Hi! You are already authorized. /help")
		return
	}
	if s.Status == storage.StatusAnon && s.TokenIn != "" {
		b.send.Send(chatID, "Hi! Authorization is in progress. /help")
		return
	}
	b.send.Send(chatID, "Hi! You are not authorized. Use: /login github|yandex|code\n\n/help")
}

// HandleCallback routes inline-button presses by data prefix.
func (b *Bot) HandleCallback(ctx context.Context, chatID int64, data string) {
	s := b.store.Load(ctx, chatID)
	if !b.EnsureAuth(ctx, chatID, &s) {
		return
	}

	switch {
	case strings.HasPrefix(data, "course:"):
		id, err := strconv.Atoi(strings.TrimPrefix(data, "course:"))
		if err != nil {
			return
		}
		s.CurrentCourseID = id
		b.saveQuiet(ctx, chatID, s)
		b.showCourseTests(ctx, chatID, &s)
	case strings.HasPrefix(data, "test:"):
		id, err := strconv.Atoi(strings.TrimPrefix(data, "test:"))
		if err != nil {
			return
		}
		s.CurrentTestID = id
		b.saveQuiet(ctx, chatID, s)
		b.startAttempt(ctx, chatID, &s)
	case strings.HasPrefix(data, "ans:"):
		b.handleAnswer(ctx, chatID, &s, data)
	case strings.HasPrefix(data, "finish:"):
		b.finishAttempt(ctx, chatID, &s)
	case data == "back:courses":
		b.showCourses(ctx, chatID, &s)
	}
}
