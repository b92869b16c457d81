package classifier

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saqiah/waterbot/internal/core/llm"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/repository"
	"github.com/saqiah/waterbot/pkg/language"
)

type fakeChat struct {
	reply    string
	called   bool
	lastUser string
}

func (f *fakeChat) Chat(ctx context.Context, req llm.ChatRequest) (openai.ChatCompletionMessage, error) {
	f.called = true
	f.lastUser = req.Messages[len(req.Messages)-1].Content
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}, nil
}

type fakeTranslator struct {
	out    string
	called bool
}

func (f *fakeTranslator) TranslateTo(ctx context.Context, text string, target language.Lang) (string, error) {
	f.called = true
	return f.out, nil
}

func testSetup(t *testing.T) (repository.ConversationRepository, *domain.InboundMessage) {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := db.Conversations()
	user, err := repo.UpsertUser(context.Background(), "966501234567")
	require.NoError(t, err)
	msg, err := repo.RecordInbound(context.Background(), user.ID, "", language.Arabic, nil)
	require.NoError(t, err)
	return repo, msg
}

func TestClassifyLabels(t *testing.T) {
	tests := []struct {
		label string
		want  domain.Intent
	}{
		{"طلب خدمة", domain.IntentServiceRequest},
		{"استفسار", domain.IntentInquiry},
		{"شكوى", domain.IntentComplaint},
		{"اقتراح", domain.IntentSuggestion},
		{"تحية", domain.IntentGreeting},
		{"شكر", domain.IntentThanking},
		{"أخرى", domain.IntentOther},
		{`"تحية".`, domain.IntentGreeting},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			repo, msg := testSetup(t)
			msg.Text = "السلام عليكم"
			chat := &fakeChat{reply: tt.label}
			c := New(chat, &fakeTranslator{}, repo)

			intent, err := c.Classify(context.Background(), msg, nil)
			require.NoError(t, err)
			require.NotNil(t, intent)
			assert.Equal(t, tt.want, *intent)
		})
	}
}

func TestClassifyUnparseableLabelIsNil(t *testing.T) {
	repo, msg := testSetup(t)
	msg.Text = "نص غامض"
	c := New(&fakeChat{reply: "تصنيفان: تحية واستفسار"}, &fakeTranslator{}, repo)

	intent, err := c.Classify(context.Background(), msg, nil)
	require.NoError(t, err)
	assert.Nil(t, intent)
}

func TestClassifyBrandKeywordFastPath(t *testing.T) {
	repo, msg := testSetup(t)
	msg.Text = "عندكم مياة صحتك؟"
	chat := &fakeChat{reply: "تحية"}
	c := New(chat, &fakeTranslator{}, repo)

	intent, err := c.Classify(context.Background(), msg, nil)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, domain.IntentInquiry, *intent)
	assert.False(t, chat.called, "keyword match must not call the model")
}

func TestClassifyTranslatesEnglishWithoutHistory(t *testing.T) {
	repo, msg := testSetup(t)
	msg.Text = "do you deliver water"
	msg.Language = language.English

	chat := &fakeChat{reply: "استفسار"}
	tr := &fakeTranslator{out: "هل توصلون المياه"}
	c := New(chat, tr, repo)

	intent, err := c.Classify(context.Background(), msg, nil)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, domain.IntentInquiry, *intent)
	assert.True(t, tr.called)
	assert.Equal(t, "هل توصلون المياه", chat.lastUser)
}

func TestClassifySkipsTranslationWithHistory(t *testing.T) {
	repo, msg := testSetup(t)
	msg.Text = "Riyadh"
	msg.Language = language.English

	chat := &fakeChat{reply: "استفسار"}
	tr := &fakeTranslator{out: "الرياض"}
	c := New(chat, tr, repo)

	history := []domain.HistoryTurn{
		{Role: "user", Content: "ابغى مويه"},
		{Role: "bot", Content: "في أي مدينة أنت؟"},
	}
	intent, err := c.Classify(context.Background(), msg, history)
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.False(t, tr.called, "history present, original text goes through")
	assert.Equal(t, "Riyadh", chat.lastUser)
}

type recordingRepo struct {
	repository.ConversationRepository
	complaints  int
	suggestions int
	intents     []domain.Intent
}

func (r *recordingRepo) SetIntent(ctx context.Context, inboundID uint, intent domain.Intent) error {
	r.intents = append(r.intents, intent)
	return r.ConversationRepository.SetIntent(ctx, inboundID, intent)
}

func (r *recordingRepo) CreateComplaint(ctx context.Context, inboundID uint, text string) error {
	r.complaints++
	return r.ConversationRepository.CreateComplaint(ctx, inboundID, text)
}

func (r *recordingRepo) CreateSuggestion(ctx context.Context, inboundID uint, text string) error {
	r.suggestions++
	return r.ConversationRepository.CreateSuggestion(ctx, inboundID, text)
}

func TestClassifySideEffects(t *testing.T) {
	tests := []struct {
		name            string
		label           string
		wantComplaints  int
		wantSuggestions int
	}{
		{"complaint recorded", "شكوى", 1, 0},
		{"suggestion recorded", "اقتراح", 0, 1},
		{"greeting records nothing", "تحية", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, msg := testSetup(t)
			msg.Text = "نص الرسالة"
			repo := &recordingRepo{ConversationRepository: base}
			c := New(&fakeChat{reply: tt.label}, &fakeTranslator{}, repo)

			intent, err := c.Classify(context.Background(), msg, nil)
			require.NoError(t, err)
			require.NotNil(t, intent)
			assert.Equal(t, tt.wantComplaints, repo.complaints)
			assert.Equal(t, tt.wantSuggestions, repo.suggestions)
			require.Len(t, repo.intents, 1)
			assert.Equal(t, *intent, repo.intents[0])
		})
	}
}
