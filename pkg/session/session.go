// Package session defines the mutable session aggregate shared by the
// three simulation stages: scenario, rubric, transcript, and feedback.
//
// One Session belongs to exactly one interactive run. The controller owns
// it and serializes all event handling; Session itself performs no locking.
// Every mutation is guarded so the documented invariants hold at all times:
//
//   - rubric is set if and only if scenario is set (one atomic write)
//   - the transcript is empty until a scenario exists, and append-only after
//   - finished implies a scenario exists
//   - feedback is set only after finished, and only once
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Speaker attributes a transcript turn.
type Speaker string

const (
	// SpeakerUser is the trainee playing the scenario.
	SpeakerUser Speaker = "USER"
	// SpeakerFacilitator is the simulation facilitator persona.
	SpeakerFacilitator Speaker = "FACILITATOR"
)

// Turn is one utterance in the simulated conversation. Immutable once
// appended; append order is conversation order.
type Turn struct {
	Speaker Speaker
	Content string
}

// ScenarioRequest carries the user-supplied scenario parameters. It is
// ephemeral: consumed by the design stage, never stored on the session.
type ScenarioRequest struct {
	Tactics         string
	ScenarioDetails string
	Role            string
	MakeItUp        bool
	Difficulty      int
}

// Validate checks the request constraints. All fields are free-form user
// input except Difficulty, which must be in [1,5].
func (r *ScenarioRequest) Validate() error {
	if r.Difficulty < 1 || r.Difficulty > 5 {
		return fmt.Errorf("difficulty must be between 1 and 5, got %d", r.Difficulty)
	}
	return nil
}

// Session is the single mutable aggregate for one interactive run.
type Session struct {
	id          string
	createdAt   time.Time
	scenario    string
	rubric      string
	hasScenario bool
	transcript  []Turn
	feedback    string
	hasFeedback bool
	finished    bool
}

// New creates a session with every field at its initial value.
func New() *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Scenario returns the scenario text and whether it has been generated.
func (s *Session) Scenario() (string, bool) {
	return s.scenario, s.hasScenario
}

// Rubric returns the rubric text and whether it has been generated.
// It is non-empty exactly when the scenario is.
func (s *Session) Rubric() (string, bool) {
	return s.rubric, s.hasScenario
}

// Transcript returns a copy of the transcript in conversation order.
func (s *Session) Transcript() []Turn {
	return append([]Turn{}, s.transcript...)
}

// Feedback returns the evaluation feedback and whether it has been produced.
func (s *Session) Feedback() (string, bool) {
	return s.feedback, s.hasFeedback
}

// Finished reports whether the user has ended the simulation phase.
func (s *Session) Finished() bool { return s.finished }

// SetScenario records the scenario/rubric pair produced by the design
// stage. The pair is written atomically and only once per run.
func (s *Session) SetScenario(scenario, rubric string) error {
	if s.hasScenario {
		return fmt.Errorf("scenario already generated for session %s", s.id)
	}
	s.scenario = scenario
	s.rubric = rubric
	s.hasScenario = true
	return nil
}

// AppendExchange appends one completed user/facilitator exchange. Both
// turns land together so a failed gateway call never leaves a half-applied
// transcript.
func (s *Session) AppendExchange(userMove, facilitatorReply string) error {
	if !s.hasScenario {
		return fmt.Errorf("cannot append to transcript before scenario is generated")
	}
	if s.finished {
		return fmt.Errorf("cannot append to transcript after simulation is finished")
	}
	s.transcript = append(s.transcript,
		Turn{Speaker: SpeakerUser, Content: userMove},
		Turn{Speaker: SpeakerFacilitator, Content: facilitatorReply},
	)
	return nil
}

// SetFinished marks the simulation phase as ended.
func (s *Session) SetFinished() error {
	if !s.hasScenario {
		return fmt.Errorf("cannot finish before scenario is generated")
	}
	s.finished = true
	return nil
}

// SetFeedback records the evaluation output. Requires a finished
// simulation and at most one write per run.
func (s *Session) SetFeedback(feedback string) error {
	if !s.finished {
		return fmt.Errorf("cannot record feedback before simulation is finished")
	}
	if s.hasFeedback {
		return fmt.Errorf("feedback already recorded for session %s", s.id)
	}
	s.feedback = feedback
	s.hasFeedback = true
	return nil
}

// Reset returns every field to its initial value and assigns a fresh
// session ID. The reset is atomic from the caller's perspective: no
// partial clearing is observable.
func (s *Session) Reset() {
	*s = *New()
}

// RenderTranscript renders turns as the conversation context consumed by
// the facilitation and evaluation prompts: one "<SPEAKER>: <content>"
// line per turn, each newline-terminated, in transcript order.
func RenderTranscript(turns []Turn) string {
	var b strings.Builder
	for i := range turns {
		b.WriteString(string(turns[i].Speaker))
		b.WriteString(": ")
		b.WriteString(turns[i].Content)
		b.WriteString("\n")
	}
	return b.String()
}
