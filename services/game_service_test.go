package services

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"bitrush/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPlayingRoom builds a room already in the playing phase with a fixed
// question sequence: question i shows decimal i and expects its 8-bit
// binary encoding. The first player id is the host.
func newPlayingRoom(store *RoomStore, goalType string, goalValue, lives, questionCount int, playerIDs ...string) *LiveRoom {
	now := time.Now()
	room := &models.Room{
		Code:              "GAME01",
		HostParticipantID: playerIDs[0],
		Mode:              models.ModeStandard,
		ConversionType:    models.ConversionBinary,
		GoalType:          goalType,
		GoalValue:         goalValue,
		Lives:             lives,
		MaxPlayers:        8,
		ShowLeaderboard:   true,
		Status:            models.StatusPlaying,
		StartedAt:         &now,
		LastActivityAt:    now,
	}

	lr := NewLiveRoom(room)
	lr.Mu.Lock()
	for _, id := range playerIDs {
		lr.AddParticipant(&models.Participant{
			ID:          id,
			DisplayName: id,
			Role:        models.RolePlayer,
			Lives:       lives,
			JoinedAt:    now,
		})
	}
	questions := make([]models.Question, questionCount)
	for i := range questions {
		questions[i] = models.Question{Index: i, Value: strconv.Itoa(i), Answer: encodeBinary(i, 8)}
	}
	lr.Questions = questions
	lr.Mu.Unlock()

	store.Put(lr)
	return lr
}

func answerFor(index int) string {
	return encodeBinary(index, 8)
}

func decodePayload(t *testing.T, msg Message, out any) {
	t.Helper()
	data, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

// findMessage scans a client's send buffer for the first message of the
// given type, draining everything before it.
func findMessage(t *testing.T, c *Client, msgType string) Message {
	t.Helper()
	for len(c.send) > 0 {
		msg := drainOne(t, c)
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message received", msgType)
	return Message{}
}

func TestSubmitAnswer_FirstToWin(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)
	hub := NewHub(game)

	lr := newPlayingRoom(store, models.GoalFirstTo, 5, 0, 20, "A", "B")
	clientA := testClient(hub, "GAME01", "A")
	clientB := testClient(hub, "GAME01", "B")

	for i := 0; i < 5; i++ {
		game.SubmitAnswer("GAME01", "A", answerFor(i), hub)
	}

	lr.Mu.Lock()
	a := lr.Participants["A"]
	assert.Equal(t, 5, a.Score)
	assert.Equal(t, 5, a.QuestionIndex)
	assert.Equal(t, models.StatusEnded, lr.Room.Status)
	require.NotNil(t, lr.Room.EndedAt)
	lr.Mu.Unlock()

	assert.Nil(t, store.Get("GAME01"), "ended room should leave the live store")

	result := findMessage(t, clientA, MsgAnswerResult)
	var answer AnswerResultPayload
	decodePayload(t, result, &answer)
	assert.True(t, answer.Correct)

	ended := findMessage(t, clientB, MsgGameEnded)
	var final GameEndedPayload
	decodePayload(t, ended, &final)
	assert.Equal(t, EndReasonFirstTo, final.Reason)
	require.Len(t, final.Leaderboard, 2)
	assert.Equal(t, 1, final.Leaderboard[0].Rank)
	assert.Equal(t, "A", final.Leaderboard[0].DisplayName)
	assert.Equal(t, 5, final.Leaderboard[0].Score)
	assert.Equal(t, 2, final.Leaderboard[1].Rank)
	assert.Equal(t, "B", final.Leaderboard[1].DisplayName)
	assert.Equal(t, 0, final.Leaderboard[1].Score)
}

func TestSubmitAnswer_WrongAnswer(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)
	hub := NewHub(game)

	lr := newPlayingRoom(store, models.GoalFirstTo, 10, 3, 20, "A")
	clientA := testClient(hub, "GAME01", "A")

	game.SubmitAnswer("GAME01", "A", answerFor(0), hub)
	game.SubmitAnswer("GAME01", "A", "not binary at all", hub)

	lr.Mu.Lock()
	a := lr.Participants["A"]
	assert.Equal(t, 1, a.Score, "score never decreases on a miss")
	assert.Equal(t, 0, a.Streak, "streak resets on a miss")
	assert.Equal(t, 2, a.Lives)
	assert.Equal(t, 1, a.QuestionIndex, "cursor stays on the missed question")
	lr.Mu.Unlock()

	findMessage(t, clientA, MsgAnswerResult)
	result := findMessage(t, clientA, MsgAnswerResult)
	var answer AnswerResultPayload
	decodePayload(t, result, &answer)
	assert.False(t, answer.Correct)
	assert.Equal(t, 1, answer.Index)
}

func TestSubmitAnswer_AcceptsEquivalentForms(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)

	lr := newPlayingRoom(store, models.GoalFirstTo, 10, 0, 20, "A")

	// Question 0 shows "0"; a decimal answer is as good as the bit string.
	game.SubmitAnswer("GAME01", "A", "0", nil)
	// Question 1 shows "1"; grouped bits are accepted too.
	game.SubmitAnswer("GAME01", "A", "0000 0001", nil)

	lr.Mu.Lock()
	defer lr.Mu.Unlock()
	assert.Equal(t, 2, lr.Participants["A"].Score)
}

func TestSubmitAnswer_SurvivalLastOneStanding(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)
	hub := NewHub(game)

	newPlayingRoom(store, models.GoalSurvival, 0, 1, 20, "A", "B")
	clientB := testClient(hub, "GAME01", "B")

	game.SubmitAnswer("GAME01", "A", "wrong", hub)

	ended := findMessage(t, clientB, MsgGameEnded)
	var final GameEndedPayload
	decodePayload(t, ended, &final)
	assert.Equal(t, EndReasonSurvival, final.Reason)
	assert.Nil(t, store.Get("GAME01"))
}

func TestSubmitAnswer_SurvivalOutlastsMisses(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)

	lr := newPlayingRoom(store, models.GoalSurvival, 0, 3, 20, "A", "B")

	// B keeps answering while A burns through three lives.
	for i := 0; i < 3; i++ {
		game.SubmitAnswer("GAME01", "B", answerFor(i), nil)
		game.SubmitAnswer("GAME01", "A", "wrong", nil)
	}

	lr.Mu.Lock()
	defer lr.Mu.Unlock()
	assert.Equal(t, models.StatusEnded, lr.Room.Status)
	assert.Equal(t, 0, lr.Participants["A"].Lives)
	assert.Equal(t, 3, lr.Participants["B"].Lives, "the survivor never lost a life")
	assert.Equal(t, 3, lr.Participants["B"].Score)
}

func TestSubmitAnswer_SurvivalSoloPlayerKeepsPlaying(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)

	lr := newPlayingRoom(store, models.GoalSurvival, 0, 2, 20, "A")

	// A single surviving player with lives left is not a finished game.
	game.SubmitAnswer("GAME01", "A", "wrong", nil)

	lr.Mu.Lock()
	status := lr.Room.Status
	lives := lr.Participants["A"].Lives
	lr.Mu.Unlock()
	assert.Equal(t, models.StatusPlaying, status)
	assert.Equal(t, 1, lives)

	// Losing the last life ends it even solo.
	game.SubmitAnswer("GAME01", "A", "wrong", nil)
	lr.Mu.Lock()
	status = lr.Room.Status
	lr.Mu.Unlock()
	assert.Equal(t, models.StatusEnded, status)
}

func TestSubmitAnswer_StreakGoal(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)

	lr := newPlayingRoom(store, models.GoalStreak, 3, 0, 20, "A")

	game.SubmitAnswer("GAME01", "A", answerFor(0), nil)
	game.SubmitAnswer("GAME01", "A", "wrong", nil)
	game.SubmitAnswer("GAME01", "A", answerFor(1), nil)
	game.SubmitAnswer("GAME01", "A", answerFor(2), nil)

	lr.Mu.Lock()
	status := lr.Room.Status
	lr.Mu.Unlock()
	assert.Equal(t, models.StatusPlaying, status, "a broken streak must not count")

	game.SubmitAnswer("GAME01", "A", answerFor(3), nil)

	lr.Mu.Lock()
	defer lr.Mu.Unlock()
	assert.Equal(t, models.StatusEnded, lr.Room.Status)
	assert.Equal(t, 3, lr.Participants["A"].Streak)
}

func TestSubmitAnswer_TimedEndsLazily(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)
	hub := NewHub(game)

	lr := newPlayingRoom(store, models.GoalTimed, 30, 0, 20, "A", "B")
	clientB := testClient(hub, "GAME01", "B")

	expired := time.Now().Add(-31 * time.Second)
	lr.Mu.Lock()
	lr.Room.StartedAt = &expired
	lr.Mu.Unlock()

	game.SubmitAnswer("GAME01", "A", answerFor(0), hub)

	ended := findMessage(t, clientB, MsgGameEnded)
	var final GameEndedPayload
	decodePayload(t, ended, &final)
	assert.Equal(t, EndReasonTimed, final.Reason)
	// The answer that crossed the line still counted.
	assert.Equal(t, 1, final.Leaderboard[0].Score)
}

func TestSubmitAnswer_IgnoredWhenStale(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)

	lr := newPlayingRoom(store, models.GoalFirstTo, 10, 0, 20, "A")
	now := time.Now()
	lr.Mu.Lock()
	lr.AddParticipant(&models.Participant{ID: "S", DisplayName: "S", Role: models.RoleSpectator, JoinedAt: now})
	lr.AddParticipant(&models.Participant{ID: "L", DisplayName: "L", Role: models.RolePlayer, JoinedAt: now, LeftAt: &now})
	lr.Mu.Unlock()

	game.SubmitAnswer("GAME01", "S", answerFor(0), nil)
	game.SubmitAnswer("GAME01", "L", answerFor(0), nil)
	game.SubmitAnswer("GAME01", "nobody", answerFor(0), nil)
	game.SubmitAnswer("NOROOM", "A", answerFor(0), nil)

	lr.Mu.Lock()
	lr.Room.Status = models.StatusLobby
	lr.Mu.Unlock()
	game.SubmitAnswer("GAME01", "A", answerFor(0), nil)

	lr.Mu.Lock()
	defer lr.Mu.Unlock()
	assert.Equal(t, 0, lr.Participants["S"].Score)
	assert.Equal(t, 0, lr.Participants["L"].Score)
	assert.Equal(t, 0, lr.Participants["A"].Score)
}

func TestRequestEndGame_HostOnly(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)
	hub := NewHub(game)

	lr := newPlayingRoom(store, models.GoalFirstTo, 10, 0, 20, "A", "B")
	clientA := testClient(hub, "GAME01", "A")

	game.RequestEndGame("GAME01", "B", hub)
	lr.Mu.Lock()
	status := lr.Room.Status
	lr.Mu.Unlock()
	assert.Equal(t, models.StatusPlaying, status, "non-host end request must be ignored")

	game.RequestEndGame("GAME01", "A", hub)

	ended := findMessage(t, clientA, MsgGameEnded)
	var final GameEndedPayload
	decodePayload(t, ended, &final)
	assert.Equal(t, EndReasonHostEnded, final.Reason)
	assert.Nil(t, store.Get("GAME01"))
}

func TestHandleDisconnect_MarksDeparture(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)
	hub := NewHub(game)

	lr := newPlayingRoom(store, models.GoalFirstTo, 10, 0, 20, "A", "B")
	clientA := testClient(hub, "GAME01", "A")

	game.HandleDisconnect("GAME01", "B", hub)

	lr.Mu.Lock()
	left := lr.Participants["B"].LeftAt
	lr.Mu.Unlock()
	require.NotNil(t, left)

	state := findMessage(t, clientA, MsgRoomState)
	var payload RoomStatePayload
	decodePayload(t, state, &payload)
	require.Len(t, payload.Participants, 1)
	assert.Equal(t, "A", payload.Participants[0].ID)
}

func TestChat_FansOutToRoom(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)
	hub := NewHub(game)

	newPlayingRoom(store, models.GoalFirstTo, 10, 0, 20, "A", "B")
	clientB := testClient(hub, "GAME01", "B")

	game.Chat("GAME01", "A", "gg", hub)

	msg := findMessage(t, clientB, MsgChatMessage)
	var chat ChatMessagePayload
	decodePayload(t, msg, &chat)
	assert.Equal(t, "A", chat.ParticipantID)
	assert.Equal(t, "gg", chat.Text)
}

func TestLeaderboard_DepartedPlayersKeepTheirSlot(t *testing.T) {
	store := NewRoomStore()
	game := NewGameService(nil, nil, store, nil)

	lr := newPlayingRoom(store, models.GoalFirstTo, 10, 0, 20, "A", "B")
	game.SubmitAnswer("GAME01", "B", answerFor(0), nil)
	game.HandleDisconnect("GAME01", "B", nil)

	lr.Mu.Lock()
	board := leaderboardLocked(lr)
	lr.Mu.Unlock()

	require.Len(t, board, 2)
	assert.Equal(t, "B", board[0].DisplayName)
	assert.Equal(t, 1, board[0].Score)
}
