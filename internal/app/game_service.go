package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vincentsi/FastQuizParty-sub000/internal/anticheat"
	"github.com/vincentsi/FastQuizParty-sub000/internal/domain"
	"github.com/vincentsi/FastQuizParty-sub000/internal/scoring"
)

// Timings groups the fixed delays of the question cycle. Tests shrink them
// for fast deterministic runs.
type Timings struct {
	CountdownSteps    int
	CountdownInterval time.Duration
	// NetworkBuffer extends the question timer past the client-visible limit
	// to absorb broadcast delivery delay.
	NetworkBuffer time.Duration
	// RevealDelay is the pause before the reveal once everyone has answered.
	RevealDelay time.Duration
	// AdvanceDelay is how long the reveal stays on screen before the next
	// question (or the final leaderboard).
	AdvanceDelay time.Duration
	// StoreTimeout bounds store round-trips made from timer callbacks.
	StoreTimeout time.Duration
}

// DefaultTimings are the production values.
func DefaultTimings() Timings {
	return Timings{
		CountdownSteps:    3,
		CountdownInterval: time.Second,
		NetworkBuffer:     500 * time.Millisecond,
		RevealDelay:       2 * time.Second,
		AdvanceDelay:      3 * time.Second,
		StoreTimeout:      5 * time.Second,
	}
}

// gameRunner owns the scheduled tasks of one live session so that a finalize
// or abort can cancel every pending timer deterministically.
type gameRunner struct {
	roomID string

	mu            sync.Mutex
	questionTimer *time.Timer
	revealTimer   *time.Timer
	advanceTimer  *time.Timer
	revealedIndex int
	done          chan struct{}
	closed        bool
}

func newGameRunner(roomID string) *gameRunner {
	return &gameRunner{roomID: roomID, revealedIndex: -1, done: make(chan struct{})}
}

func (r *gameRunner) stopTimersLocked() {
	for _, t := range []*time.Timer{r.questionTimer, r.revealTimer, r.advanceTimer} {
		if t != nil {
			t.Stop()
		}
	}
	r.questionTimer, r.revealTimer, r.advanceTimer = nil, nil, nil
}

func (r *gameRunner) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimersLocked()
	if !r.closed {
		close(r.done)
		r.closed = true
	}
}

// GameService drives a ready room through countdown, question, reveal and
// completion. State lives in the SessionStore; timers live in a per-session
// runner on the instance that started the game.
type GameService struct {
	rooms    RoomStore
	sessions SessionStore
	quizzes  QuizRepository
	archiver GameArchiver
	events   Broadcaster
	log      *logrus.Logger
	timings  Timings
	now      func() time.Time

	mu      sync.Mutex
	runners map[string]*gameRunner
}

func NewGameService(rooms RoomStore, sessions SessionStore, quizzes QuizRepository, archiver GameArchiver, events Broadcaster, log *logrus.Logger) *GameService {
	return NewGameServiceWithTimings(rooms, sessions, quizzes, archiver, events, log, DefaultTimings())
}

// NewGameServiceWithTimings is exported for tests that need shortened delays.
func NewGameServiceWithTimings(rooms RoomStore, sessions SessionStore, quizzes QuizRepository, archiver GameArchiver, events Broadcaster, log *logrus.Logger, timings Timings) *GameService {
	return &GameService{
		rooms:    rooms,
		sessions: sessions,
		quizzes:  quizzes,
		archiver: archiver,
		events:   events,
		log:      log,
		timings:  timings,
		now:      time.Now,
		runners:  make(map[string]*gameRunner),
	}
}

// questionView is the broadcast shape of a question, correct answer omitted.
type questionView struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
}

// Begin converts a STARTING room into a live session. The quiz definition is
// snapshotted here once; later quiz edits never affect the in-flight game.
func (s *GameService) Begin(ctx context.Context, room *domain.Room) (*domain.GameSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, room.QuizID)
	if err != nil {
		return nil, domain.ErrQuizNotFound
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrQuizHasNoQuestions
	}

	questions := make([]domain.Question, len(quiz.Questions))
	copy(questions, quiz.Questions)
	for i := range questions {
		if questions[i].TimeLimitSeconds == 0 {
			questions[i].TimeLimitSeconds = room.QuestionTimeSeconds
		}
	}

	session := &domain.GameSession{
		RoomID:               room.ID,
		RoomCode:             room.Code,
		HostID:               room.HostPlayerID,
		QuizID:               quiz.ID,
		Questions:            questions,
		CurrentQuestionIndex: -1,
		Answers:              make(map[string][]domain.PlayerAnswer, len(room.Players)),
		Scores:               make(map[string]int, len(room.Players)),
		PlayerNames:          make(map[string]string, len(room.Players)),
		Status:               domain.SessionPlaying,
		StartedAt:            s.now(),
	}
	for id, p := range room.Players {
		session.Answers[id] = nil
		session.Scores[id] = 0
		session.PlayerNames[id] = p.Username
	}
	if host := room.Host(); host != nil && !host.Identity.IsGuest() {
		session.HostAuthUserID = host.Identity.ID
	}

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	runner := newGameRunner(room.ID)
	s.mu.Lock()
	if old, ok := s.runners[room.ID]; ok {
		old.close()
	}
	s.runners[room.ID] = runner
	s.mu.Unlock()

	s.events.ToRoom(room.ID, "game.started", map[string]any{
		"quizId":         quiz.ID,
		"totalQuestions": len(questions),
	})
	s.log.WithFields(logrus.Fields{"room": room.ID, "quiz": quiz.ID, "questions": len(questions)}).Info("game started")

	go s.runCountdown(runner)
	return session, nil
}

// runCountdown broadcasts the 3-step countdown, then enters the first
// question. Each step is a timed wait; closing the runner aborts it.
func (s *GameService) runCountdown(r *gameRunner) {
	for i := s.timings.CountdownSteps; i > 0; i-- {
		s.events.ToRoom(r.roomID, "game.countdown", map[string]any{"seconds": i})
		select {
		case <-time.After(s.timings.CountdownInterval):
		case <-r.done:
			return
		}
	}
	s.startQuestion(r, 0)
}

func (s *GameService) startQuestion(r *gameRunner, index int) {
	ctx, cancel := s.storeCtx()
	defer cancel()

	session, err := s.sessions.GetSession(ctx, r.roomID)
	if err != nil {
		s.log.WithError(err).WithField("room", r.roomID).Error("load session for question start")
		return
	}
	if session.Status != domain.SessionPlaying || index >= len(session.Questions) {
		return
	}

	session.CurrentQuestionIndex = index
	session.QuestionStartedAt = s.now()
	if err := s.sessions.SaveSession(ctx, session); err != nil {
		s.log.WithError(err).WithField("room", r.roomID).Error("persist question start")
	}

	q := session.Questions[index]
	s.events.ToRoom(r.roomID, "game.question", map[string]any{
		"question": questionView{
			ID:               q.ID,
			Text:             q.Text,
			Options:          q.Options,
			TimeLimitSeconds: q.TimeLimitSeconds,
		},
		"questionNumber": index + 1,
		"totalQuestions": len(session.Questions),
		"startTime":      session.QuestionStartedAt.UnixMilli(),
	})

	window := time.Duration(q.TimeLimitSeconds)*time.Second + s.timings.NetworkBuffer
	r.mu.Lock()
	if !r.closed {
		r.questionTimer = time.AfterFunc(window, func() { s.reveal(r, index) })
	}
	r.mu.Unlock()
}

// SubmitAnswer records one answer for the current question. The response
// time is measured against the server clock; the client timestamp is used as
// an anti-cheat signal only.
func (s *GameService) SubmitAnswer(ctx context.Context, roomID, playerID string, rawAnswer any, clientTimestampMs int64) (*domain.AnswerResult, error) {
	// Malformed payloads are a validation error regardless of game state.
	answerIndex, err := coerceAnswerIndex(rawAnswer)
	if err != nil {
		return nil, err
	}

	runner := s.runner(roomID)
	if runner != nil {
		// Serializes in-process writers to the same session; cross-instance
		// submissions remain last-writer-wins (single-key aggregate).
		runner.mu.Lock()
		defer runner.mu.Unlock()
	}

	session, err := s.sessions.GetSession(ctx, roomID)
	if err != nil {
		return nil, err
	}
	question := session.CurrentQuestion()
	if session.Status != domain.SessionPlaying || question == nil {
		return nil, domain.ErrNoCurrentQuestion
	}

	if answerIndex < 0 || answerIndex >= len(question.Options) {
		return nil, domain.ErrInvalidAnswerFormat
	}
	if _, member := session.Scores[playerID]; !member {
		return nil, domain.ErrPlayerNotFound
	}
	if session.HasAnswered(playerID, question.ID) {
		return nil, domain.ErrAlreadyAnswered
	}

	submittedAt := s.now()
	verdict := anticheat.ValidateAnswer(submittedAt, session.QuestionStartedAt, question.TimeLimitSeconds)
	if !verdict.Valid {
		switch verdict.Reason {
		case anticheat.ReasonBeforeQuestion:
			return nil, domain.ErrAnsweredBeforeQuestion
		default:
			return nil, domain.ErrAnswerTooLate
		}
	}
	if clientTimestampMs > 0 && clientTimestampMs < session.QuestionStartedAt.UnixMilli() {
		// Client claims to have answered before the question existed.
		return nil, domain.ErrAnsweredBeforeQuestion
	}

	isCorrect := answerIndex == question.CorrectAnswerIndex
	streak := scoring.CalculateStreak(session.Answers[playerID], scoring.StreakCap)
	breakdown := scoring.CalculatePoints(verdict.ElapsedMs, int64(question.TimeLimitSeconds)*1000, question.Points, isCorrect, streak)

	session.Answers[playerID] = append(session.Answers[playerID], domain.PlayerAnswer{
		QuestionID:     question.ID,
		AnswerIndex:    answerIndex,
		IsCorrect:      isCorrect,
		ResponseTimeMs: verdict.ElapsedMs,
		PointsAwarded:  breakdown.Total,
		SubmittedAt:    submittedAt,
	})
	session.Scores[playerID] += breakdown.Total

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	if verdict.Suspicious {
		s.log.WithFields(logrus.Fields{"room": roomID, "player": playerID, "flag": verdict.Flag, "elapsedMs": verdict.ElapsedMs}).Warn("suspicious answer timing")
	}
	if flags := anticheat.DetectSuspiciousPattern(session.Answers[playerID]); len(flags) > 0 {
		s.log.WithFields(logrus.Fields{"room": roomID, "player": playerID, "flags": flags}).Warn("suspicious play pattern")
	}

	result := &domain.AnswerResult{
		IsCorrect:          isCorrect,
		CorrectAnswerIndex: question.CorrectAnswerIndex,
		Points:             breakdown.Total,
		ResponseTimeMs:     verdict.ElapsedMs,
		NewScore:           session.Scores[playerID],
		Rank:               s.rankOf(session, playerID),
	}

	if runner != nil && s.allAnswered(ctx, session, question.ID) {
		s.scheduleRevealLocked(runner, session.CurrentQuestionIndex)
	}
	return result, nil
}

// allAnswered reports whether every current room member has an entry for the
// question. Falls back to the session roster when the room read fails.
func (s *GameService) allAnswered(ctx context.Context, session *domain.GameSession, questionID string) bool {
	var members []string
	if room, err := s.rooms.GetRoom(ctx, session.RoomID); err == nil {
		for id := range room.Players {
			members = append(members, id)
		}
	} else {
		for id := range session.Scores {
			members = append(members, id)
		}
	}
	for _, id := range members {
		if !session.HasAnswered(id, questionID) {
			return false
		}
	}
	return len(members) > 0
}

// scheduleRevealLocked cancels the question timer and arms the fast-path
// reveal. Caller holds runner.mu.
func (s *GameService) scheduleRevealLocked(r *gameRunner, index int) {
	if r.closed || r.revealTimer != nil || r.revealedIndex >= index {
		return
	}
	if r.questionTimer != nil {
		r.questionTimer.Stop()
		r.questionTimer = nil
	}
	r.revealTimer = time.AfterFunc(s.timings.RevealDelay, func() { s.reveal(r, index) })
}

// reveal closes the question window: broadcasts the correct answer and the
// scoreboard, then schedules the advance. First-to-complete wins between the
// all-answered fast path and the timer expiry.
func (s *GameService) reveal(r *gameRunner, index int) {
	r.mu.Lock()
	if r.closed || r.revealedIndex >= index {
		r.mu.Unlock()
		return
	}
	r.revealedIndex = index
	if r.questionTimer != nil {
		r.questionTimer.Stop()
		r.questionTimer = nil
	}
	r.revealTimer = nil
	r.mu.Unlock()

	ctx, cancel := s.storeCtx()
	defer cancel()

	session, err := s.sessions.GetSession(ctx, r.roomID)
	if err != nil {
		s.log.WithError(err).WithField("room", r.roomID).Error("load session for reveal")
		return
	}
	if index >= len(session.Questions) {
		return
	}
	question := session.Questions[index]

	s.events.ToRoom(r.roomID, "game.question.timeout", map[string]any{
		"questionId":    question.ID,
		"correctAnswer": question.CorrectAnswerIndex,
	})
	s.events.ToRoom(r.roomID, "game.scoreboard.update", map[string]any{
		"leaderboard": Leaderboard(session),
	})

	r.mu.Lock()
	if !r.closed {
		r.advanceTimer = time.AfterFunc(s.timings.AdvanceDelay, func() { s.advance(r, index) })
	}
	r.mu.Unlock()
}

func (s *GameService) advance(r *gameRunner, index int) {
	ctx, cancel := s.storeCtx()
	defer cancel()

	session, err := s.sessions.GetSession(ctx, r.roomID)
	if err != nil {
		s.log.WithError(err).WithField("room", r.roomID).Error("load session for advance")
		return
	}
	if index+1 >= len(session.Questions) {
		s.finish(ctx, r, session)
		return
	}
	s.startQuestion(r, index+1)
}

// finish finalizes the session. The ephemeral record is retained (bounded by
// TTL) so late readers can fetch the final snapshot; the long-term record is
// flushed asynchronously and only for games with a durable host identity.
func (s *GameService) finish(ctx context.Context, r *gameRunner, session *domain.GameSession) {
	now := s.now()
	session.Status = domain.SessionFinished
	session.FinishedAt = &now
	session.CurrentQuestionIndex = len(session.Questions)

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		s.log.WithError(err).WithField("room", r.roomID).Error("persist finished session")
	}

	s.events.ToRoom(r.roomID, "game.finished", map[string]any{
		"leaderboard": Leaderboard(session),
		"duration":    now.Sub(session.StartedAt).Milliseconds(),
	})
	s.log.WithFields(logrus.Fields{"room": r.roomID, "durationMs": now.Sub(session.StartedAt).Milliseconds()}).Info("game finished")

	s.mu.Lock()
	delete(s.runners, r.roomID)
	s.mu.Unlock()
	r.close()

	if s.archiver != nil && session.HostAuthUserID != "" {
		go s.archive(session)
	}
}

func (s *GameService) archive(session *domain.GameSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	record := GameRecord{
		RoomID:         session.RoomID,
		RoomCode:       session.RoomCode,
		HostAuthUserID: session.HostAuthUserID,
		QuizID:         session.QuizID,
		TotalQuestions: len(session.Questions),
		StartedAt:      session.StartedAt,
		FinishedAt:     *session.FinishedAt,
	}
	for _, entry := range Leaderboard(session) {
		log := session.Answers[entry.PlayerID]
		record.Players = append(record.Players, PlayerResult{
			PlayerID:          entry.PlayerID,
			Username:          entry.Username,
			Score:             entry.Score,
			Rank:              entry.Rank,
			Accuracy:          scoring.Accuracy(log),
			AvgResponseTimeMs: scoring.AverageResponseTime(log),
			MaxStreak:         scoring.MaxStreak(log),
		})
	}

	if err := s.archiver.Archive(ctx, record); err != nil {
		s.log.WithError(err).WithField("room", session.RoomID).Error("archive finished game")
	}
}

// Abort cancels all pending timers for a room, e.g. when the room dissolves
// mid-game.
func (s *GameService) Abort(roomID string) {
	s.mu.Lock()
	runner, ok := s.runners[roomID]
	if ok {
		delete(s.runners, roomID)
	}
	s.mu.Unlock()
	if ok {
		runner.close()
	}
}

// Stop aborts every live session (server shutdown).
func (s *GameService) Stop() {
	s.mu.Lock()
	runners := make([]*gameRunner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.runners = make(map[string]*gameRunner)
	s.mu.Unlock()
	for _, r := range runners {
		r.close()
	}
}

// Results returns the final session snapshot, or ErrGameNotFinished while
// the game is still running.
func (s *GameService) Results(ctx context.Context, roomID string) (*domain.GameSession, error) {
	session, err := s.sessions.GetSession(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionFinished {
		return nil, domain.ErrGameNotFinished
	}
	return session, nil
}

// GetLeaderboard returns the ranked scoreboard of a session.
func (s *GameService) GetLeaderboard(ctx context.Context, roomID string) ([]domain.LeaderboardEntry, error) {
	session, err := s.sessions.GetSession(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return Leaderboard(session), nil
}

// Leaderboard sorts players by score descending and assigns dense 1-based
// ranks. Ties are broken by username then player id so the order is stable
// across reads.
func Leaderboard(session *domain.GameSession) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(session.Scores))
	for id, score := range session.Scores {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: id,
			Username: session.PlayerNames[id],
			Score:    score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Username != entries[j].Username {
			return entries[i].Username < entries[j].Username
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func (s *GameService) rankOf(session *domain.GameSession, playerID string) int {
	for _, entry := range Leaderboard(session) {
		if entry.PlayerID == playerID {
			return entry.Rank
		}
	}
	return 0
}

func (s *GameService) runner(roomID string) *gameRunner {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runners[roomID]
}

func (s *GameService) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timings.StoreTimeout)
}

// coerceAnswerIndex turns the raw command payload into an option index. The
// range check against the live question happens at the call site.
func coerceAnswerIndex(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		index := int(v)
		if float64(index) != v {
			return 0, domain.ErrInvalidAnswerFormat
		}
		return index, nil
	default:
		return 0, domain.ErrInvalidAnswerFormat
	}
}
