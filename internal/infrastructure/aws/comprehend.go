package aws

import (
	"context"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	comprehendtypes "github.com/aws/aws-sdk-go-v2/service/comprehend/types"
	"github.com/aws/aws-sdk-go-v2/service/translate"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// maxComprehendBytes is the UTF-8 size limit of synchronous Comprehend calls
const maxComprehendBytes = 5000

type comprehendAPI interface {
	DetectSentiment(ctx context.Context, params *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
	DetectDominantLanguage(ctx context.Context, params *comprehend.DetectDominantLanguageInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectDominantLanguageOutput, error)
}

type translateAPI interface {
	TranslateText(ctx context.Context, params *translate.TranslateTextInput, optFns ...func(*translate.Options)) (*translate.TranslateTextOutput, error)
}

// TextAnalysisService combines Comprehend sentiment and language detection
// with Amazon Translate.
type TextAnalysisService struct {
	comprehend comprehendAPI
	translate  translateAPI
}

func NewTextAnalysisService(awsCfg awssdk.Config) *TextAnalysisService {
	return newTextAnalysisService(comprehend.NewFromConfig(awsCfg), translate.NewFromConfig(awsCfg))
}

func newTextAnalysisService(c comprehendAPI, t translateAPI) *TextAnalysisService {
	return &TextAnalysisService{comprehend: c, translate: t}
}

func (s *TextAnalysisService) DetectSentiment(ctx context.Context, text, languageCode string) (risk.SentimentResult, error) {
	out, err := s.comprehend.DetectSentiment(ctx, &comprehend.DetectSentimentInput{
		Text:         awssdk.String(truncateUTF8(text, maxComprehendBytes)),
		LanguageCode: comprehendtypes.LanguageCode(baseLanguage(languageCode)),
	})
	if err != nil {
		return risk.SentimentResult{}, serviceError("comprehend", "detect sentiment", err)
	}

	res := risk.SentimentResult{Label: risk.Sentiment(out.Sentiment)}
	if sc := out.SentimentScore; sc != nil {
		res.Scores = map[string]float64{
			"positive": float64(awssdk.ToFloat32(sc.Positive)),
			"negative": float64(awssdk.ToFloat32(sc.Negative)),
			"neutral":  float64(awssdk.ToFloat32(sc.Neutral)),
			"mixed":    float64(awssdk.ToFloat32(sc.Mixed)),
		}
	}
	return res, nil
}

// DetectLanguage returns the highest scoring language code, "" when
// Comprehend cannot tell.
func (s *TextAnalysisService) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, err := s.comprehend.DetectDominantLanguage(ctx, &comprehend.DetectDominantLanguageInput{
		Text: awssdk.String(truncateUTF8(text, maxComprehendBytes)),
	})
	if err != nil {
		return "", serviceError("comprehend", "detect dominant language", err)
	}

	var (
		best  string
		score float32 = -1
	)
	for _, l := range out.Languages {
		if sc := awssdk.ToFloat32(l.Score); sc > score {
			best, score = awssdk.ToString(l.LanguageCode), sc
		}
	}
	return best, nil
}

func (s *TextAnalysisService) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	if sourceLanguage == "" {
		sourceLanguage = "auto"
	}
	out, err := s.translate.TranslateText(ctx, &translate.TranslateTextInput{
		Text:               awssdk.String(text),
		SourceLanguageCode: awssdk.String(sourceLanguage),
		TargetLanguageCode: awssdk.String(targetLanguage),
	})
	if err != nil {
		return "", serviceError("translate", "translate text", err)
	}
	return awssdk.ToString(out.TranslatedText), nil
}

// baseLanguage strips the region: "hi-IN" becomes "hi".
func baseLanguage(code string) string {
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
