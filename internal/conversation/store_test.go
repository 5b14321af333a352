package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/antidoom/internal/domain"
)

func TestStartThenEndYieldsEmptyTranscript(t *testing.T) {
	s := NewStore()
	tasks := []string{"dishes", "email"}

	conv, err := s.Start("u1", tasks)
	require.NoError(t, err)
	require.Len(t, conv.History, 2)
	assert.Equal(t, OpeningLine, conv.History[1].Text)

	ending, err := s.End("u1")
	require.NoError(t, err)
	assert.Equal(t, "", ending.Transcript)
	assert.Equal(t, tasks, ending.Tasks)
	assert.Equal(t, conv.ID, ending.ConversationID)

	_, err = s.Get("u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelWithoutConversationIsNoop(t *testing.T) {
	s := NewStore()

	_, ok := s.Cancel("u1")
	assert.False(t, ok)

	_, err := s.End("u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStartReplacesExisting(t *testing.T) {
	s := NewStore()
	first, err := s.Start("u1", []string{"a"})
	require.NoError(t, err)
	require.NoError(t, s.AppendUserTurn("u1", "hello"))

	second, err := s.Start("u1", []string{"b"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := s.Get("u1")
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
	assert.Equal(t, []string{"b"}, got.Tasks)
}

func TestAppendRequiresActiveConversation(t *testing.T) {
	s := NewStore()
	assert.ErrorIs(t, s.AppendUserTurn("u1", "x"), domain.ErrNotFound)
	assert.ErrorIs(t, s.AppendAgentTurn("u1", "x"), domain.ErrNotFound)
	assert.ErrorIs(t, s.TruncateIfNeeded("u1"), domain.ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestEndTranscriptAlternatesSpeakers(t *testing.T) {
	s := NewStore()
	_, err := s.Start("u1", nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendUserTurn("u1", "I finished"))
	require.NoError(t, s.AppendAgentTurn("u1", "Prove it"))

	ending, err := s.End("u1")
	require.NoError(t, err)
	assert.Equal(t, "You: I finished\nAI: Prove it", ending.Transcript)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore()
	_, err := s.Start("u1", []string{"a"})
	require.NoError(t, err)

	got, err := s.Get("u1")
	require.NoError(t, err)
	got.History[0].Text = "mutated"
	got.Tasks[0] = "mutated"

	again, err := s.Get("u1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.History[0].Text)
	assert.Equal(t, "a", again.Tasks[0])
}

func TestConcurrentAppendsKeepEveryTurn(t *testing.T) {
	s := NewStore()
	_, err := s.Start("u1", nil)
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.AppendUserTurn("u1", fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	got, err := s.Get("u1")
	require.NoError(t, err)
	assert.Len(t, got.History, n+2)
}

func TestConcurrentUsersAreIndependent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			_, err := s.Start(user, nil)
			assert.NoError(t, err)
			assert.NoError(t, s.AppendUserTurn(user, "hi"))
			_, err = s.End(user)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, s.Len())
}

func TestEvictIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	s := NewStore(WithStoreClock(clock))
	_, err := s.Start("idle", nil)
	require.NoError(t, err)
	advance(50 * time.Minute)
	_, err = s.Start("fresh", nil)
	require.NoError(t, err)
	advance(20 * time.Minute)

	evicted := s.EvictIdle(time.Hour)
	assert.Len(t, evicted, 1)
	assert.Contains(t, evicted, "idle")

	_, err = s.Get("idle")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Get("fresh")
	assert.NoError(t, err)
}

func TestAbortRemovesTrailingUserTurn(t *testing.T) {
	s := NewStore()
	x, err := s.begin("u1", "hello", nil, true)
	require.NoError(t, err)

	s.abort("u1", x, "hello")

	conv, err := s.Get("u1")
	require.NoError(t, err)
	assert.Len(t, conv.History, 2, "only pinned turns remain")
}

func TestAbortLeavesTurnThatIsNoLongerLast(t *testing.T) {
	s := NewStore()
	first, err := s.begin("u1", "same", nil, true)
	require.NoError(t, err)
	_, err = s.begin("u1", "same", nil, false)
	require.NoError(t, err)
	require.NoError(t, s.AppendAgentTurn("u1", "answer"))

	s.abort("u1", first, "same")

	conv, err := s.Get("u1")
	require.NoError(t, err)
	require.Len(t, conv.History, 5)
	assert.Equal(t, "answer", conv.History[4].Text)
}

func TestAbortIgnoresReplacedConversation(t *testing.T) {
	s := NewStore()
	x, err := s.begin("u1", "hello", nil, true)
	require.NoError(t, err)
	_, err = s.begin("u1", "hello", nil, true)
	require.NoError(t, err)

	s.abort("u1", x, "hello")

	conv, err := s.Get("u1")
	require.NoError(t, err)
	assert.Len(t, conv.History, 3, "turn in the new conversation is kept")
}
