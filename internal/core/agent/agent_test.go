package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saqiah/waterbot/internal/core/llm"
	"github.com/saqiah/waterbot/internal/domain"
	"github.com/saqiah/waterbot/internal/prompts"
	"github.com/saqiah/waterbot/pkg/language"
)

// scriptedChat returns its messages in order, then repeats the last one.
type scriptedChat struct {
	script   []openai.ChatCompletionMessage
	calls    int
	received [][]openai.ChatCompletionMessage
}

func (s *scriptedChat) Chat(ctx context.Context, req llm.ChatRequest) (openai.ChatCompletionMessage, error) {
	s.received = append(s.received, req.Messages)
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	return s.script[idx], nil
}

func toolCallMsg(id, name, arguments string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:   id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      name,
				Arguments: arguments,
			},
		}},
	}
}

func textMsg(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
}

// fakeCatalog is an in-memory CatalogReader over the seed below:
//
//	الرياض (1): نوفا (10)
//	districts: العليا -> الرياض, الشاطي -> ينبع (unserved)
type fakeCatalog struct{}

func (fakeCatalog) ListCities(ctx context.Context, search string) ([]domain.City, error) {
	return []domain.City{{ID: 1, NameAr: "الرياض", NameEn: "Riyadh"}}, nil
}

func (fakeCatalog) SearchCities(ctx context.Context, query string) ([]domain.City, error) {
	if language.NormalizeArabic(query) == "الرياض" {
		return []domain.City{{ID: 1, NameAr: "الرياض", NameEn: "Riyadh"}}, nil
	}
	return nil, nil
}

func (fakeCatalog) GetCityIDByName(ctx context.Context, name string) (int, bool, error) {
	if language.NormalizeArabic(name) == "الرياض" {
		return 1, true, nil
	}
	return 0, false, nil
}

func (fakeCatalog) GetBrandsByCity(ctx context.Context, cityID int) ([]domain.Brand, error) {
	if cityID == 1 {
		return []domain.Brand{{ID: 10, TitleAr: "نوفا"}}, nil
	}
	return nil, nil
}

func (fakeCatalog) SearchBrandsInCity(ctx context.Context, brandName, cityName string) ([]domain.Brand, error) {
	if language.NormalizeBrandTitle(brandName) == "نوفا" && language.NormalizeArabic(cityName) == "الرياض" {
		return []domain.Brand{{ID: 10, TitleAr: "نوفا"}}, nil
	}
	return nil, nil
}

func (fakeCatalog) ProductsByBrandAndCityName(ctx context.Context, brandName, cityName string) ([]domain.Product, error) {
	if language.NormalizeBrandTitle(brandName) == "نوفا" && language.NormalizeArabic(cityName) == "الرياض" {
		return []domain.Product{{ID: 1, TitleAr: "قارورة صغيره", Packing: "330ml", ContractPrice: 18, BrandID: 10}}, nil
	}
	return nil, nil
}

func (fakeCatalog) CheapestProductsByCityName(ctx context.Context, cityName string) ([]domain.Product, error) {
	return nil, nil
}

func (fakeCatalog) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	return nil, nil
}

func (fakeCatalog) DistrictCity(ctx context.Context, districtName string) (string, bool, error) {
	return "", false, nil
}

func (fakeCatalog) ListDistricts(ctx context.Context) ([]domain.District, error) {
	return []domain.District{
		{Name: "العليا", CityName: "الرياض"},
		{Name: "الشاطي", CityName: "ينبع"},
	}, nil
}

func TestAnswerPlainTextNoTools(t *testing.T) {
	chat := &scriptedChat{script: []openai.ChatCompletionMessage{
		textMsg("أهلًا! في أي مدينة أنت؟"),
	}}
	a := New(chat, fakeCatalog{})

	answer, err := a.Answer(context.Background(), "ابغى مويه", language.Arabic, nil)
	require.NoError(t, err)
	assert.Equal(t, "أهلًا! في أي مدينة أنت؟", answer)
	assert.Equal(t, 1, chat.calls)
}

func TestAnswerToolLoopFeedsResultsBack(t *testing.T) {
	chat := &scriptedChat{script: []openai.ChatCompletionMessage{
		toolCallMsg("call-1", "get_city_id_by_name", `{"name":"الرياض"}`),
		toolCallMsg("call-2", "get_brands_by_city", `{"city_id":1}`),
		toolCallMsg("call-3", "get_products_by_brand_and_city_name", `{"brand_name":"نوفا","city_name":"الرياض"}`),
		textMsg("نوفا ٣٣٠ مل بـ ١٨ ريال"),
	}}
	a := New(chat, fakeCatalog{})

	answer, err := a.Answer(context.Background(), "كم سعر نوفا في الرياض", language.Arabic, nil)
	require.NoError(t, err)
	assert.Equal(t, "نوفا ٣٣٠ مل بـ ١٨ ريال", answer)
	require.Equal(t, 4, chat.calls)

	// each round sends the prior tool result back as a tool-role message
	last := chat.received[3]
	var toolMsgs []openai.ChatCompletionMessage
	for _, m := range last {
		if m.Role == openai.ChatMessageRoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	require.Len(t, toolMsgs, 3)
	assert.Equal(t, "call-1", toolMsgs[0].ToolCallID)
	assert.JSONEq(t, `{"id":1}`, toolMsgs[0].Content)
	assert.JSONEq(t, `[{"id":10,"title":"نوفا"}]`, toolMsgs[1].Content)

	var products []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(toolMsgs[2].Content), &products))
	require.Len(t, products, 1)
	assert.Equal(t, "330ml", products[0]["packing"])
}

func TestAnswerToolCapReturnsRetry(t *testing.T) {
	// the model never stops asking for tools
	chat := &scriptedChat{script: []openai.ChatCompletionMessage{
		toolCallMsg("call-x", "get_all_cities", ""),
	}}
	a := New(chat, fakeCatalog{})

	answer, err := a.Answer(context.Background(), "ابغى مويه", language.Arabic, nil)
	require.NoError(t, err)
	assert.Equal(t, prompts.CannedReply("retry", language.Arabic), answer)
	assert.Equal(t, MaxToolCalls+1, chat.calls)
}

func TestAnswerToolFailureIsReportedToModel(t *testing.T) {
	chat := &scriptedChat{script: []openai.ChatCompletionMessage{
		toolCallMsg("call-1", "no_such_tool", `{}`),
		textMsg("عذرًا، ما قدرت أجيب المعلومة."),
	}}
	a := New(chat, fakeCatalog{})

	answer, err := a.Answer(context.Background(), "سؤال", language.Arabic, nil)
	require.NoError(t, err)
	assert.Equal(t, "عذرًا، ما قدرت أجيب المعلومة.", answer)

	last := chat.received[1]
	toolMsg := last[len(last)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "error")
}

func TestAnswerEmptyModelReplyFallsBack(t *testing.T) {
	chat := &scriptedChat{script: []openai.ChatCompletionMessage{textMsg("  ")}}
	a := New(chat, fakeCatalog{})

	answer, err := a.Answer(context.Background(), "سؤال", language.English, nil)
	require.NoError(t, err)
	assert.Equal(t, prompts.CannedReply("retry", language.English), answer)
}

func TestAnswerDistrictShortCircuit(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"served district gets app message", "أنا ساكن في العليا", prompts.CannedReply("district_served", language.Arabic)},
		{"unserved district gets use-app message", "توصلون حي الشاطي", prompts.CannedReply("use_app", language.Arabic)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &scriptedChat{script: []openai.ChatCompletionMessage{textMsg("should not be called")}}
			a := New(chat, fakeCatalog{})

			answer, err := a.Answer(context.Background(), tt.text, language.Arabic, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer)
			assert.Zero(t, chat.calls, "district replies never reach the model")
		})
	}
}

func TestAnswerDistrictNeedsWordBoundary(t *testing.T) {
	chat := &scriptedChat{script: []openai.ChatCompletionMessage{textMsg("رد عادي")}}
	a := New(chat, fakeCatalog{})

	// العليات is a different word; the district must not match inside it
	answer, err := a.Answer(context.Background(), "العليات سؤال", language.Arabic, nil)
	require.NoError(t, err)
	assert.Equal(t, "رد عادي", answer)
	assert.Equal(t, 1, chat.calls)
}

func TestCheckAvailability(t *testing.T) {
	a := New(&scriptedChat{script: []openai.ChatCompletionMessage{textMsg("")}}, fakeCatalog{})
	ctx := context.Background()

	out, err := a.callTool(ctx, "check_city_availability",
		`{"city_name":"الرياض","kind":"brand","name":"نوفا"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"available":true`)

	out, err = a.callTool(ctx, "check_city_availability",
		`{"city_name":"الرياض","kind":"brand","name":"المنهل"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"available":false`)

	out, err = a.callTool(ctx, "check_city_availability",
		`{"city_name":"الدمام","kind":"brand","name":"نوفا"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"available":false`)
	assert.Contains(t, out, "not served")
}
