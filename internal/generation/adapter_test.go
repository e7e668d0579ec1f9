package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bethemayor/internal/cache"
	"bethemayor/internal/domain"
	"bethemayor/internal/providers/replicate"
)

type createCall struct {
	Model string
	Input map[string]any
}

// fakePredictor answers CreatePrediction with a queue of canned predictions
// and resolves Await with awaitResult.
type fakePredictor struct {
	mu          sync.Mutex
	noToken     bool
	creates     []createCall
	responses   []*replicate.Prediction
	createErr   error
	awaits      int
	awaitResult *replicate.Prediction
	awaitErr    error
}

func (f *fakePredictor) HasCredentials() bool { return !f.noToken }

func (f *fakePredictor) CreatePrediction(_ context.Context, model string, input map[string]any) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{Model: model, Input: input})
	if f.createErr != nil {
		return nil, f.createErr
	}
	if len(f.responses) == 0 {
		return succeeded(`"https://replicate.delivery/default.bin"`), nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next, nil
}

func (f *fakePredictor) Await(_ context.Context, pred *replicate.Prediction) (*replicate.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaits++
	if pred.Status == replicate.StatusFailed {
		return pred, &domain.Error{Kind: domain.KindUpstreamFailure, Message: pred.ErrorMessage(), Err: replicate.ErrPredictionFailed}
	}
	if f.awaitErr != nil {
		return pred, f.awaitErr
	}
	return f.awaitResult, nil
}

func (f *fakePredictor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func succeeded(output string) *replicate.Prediction {
	return &replicate.Prediction{ID: "p", Status: replicate.StatusSucceeded, Output: json.RawMessage(output)}
}

func TestMusicSecondCallIsServedFromCache(t *testing.T) {
	client := &fakePredictor{responses: []*replicate.Prediction{succeeded(`"https://replicate.delivery/song.mp3"`)}}
	store := cache.NewMemoryStore(0)
	music := NewAdapter(MusicCapability(""), client, AdapterOptions{Cache: store})
	ctx := context.Background()

	req := MusicRequest{Lyrics: "Yo, it's Blue on the mic tonight", Bitrate: 256000, SampleRate: 44100}
	first := music.Generate(ctx, req)
	require.True(t, first.Succeeded(), "first call: %v", first.Err())
	assert.False(t, first.Cached)
	assert.Equal(t, 1, client.calls())

	second := music.Generate(ctx, req)
	require.True(t, second.Succeeded())
	assert.True(t, second.Cached)
	assert.Equal(t, "https://replicate.delivery/song.mp3", second.ArtifactURL)
	assert.Equal(t, 1, client.calls(), "cache hit must not reach the network")

	assert.Equal(t, "minimax/music-01", client.creates[0].Model)
	assert.Equal(t, map[string]any{
		"lyrics":      "Yo, it's Blue on the mic tonight",
		"bitrate":     256000,
		"sample_rate": 44100,
	}, client.creates[0].Input)
}

func TestImageDropsNonHTTPReferenceImage(t *testing.T) {
	client := &fakePredictor{responses: []*replicate.Prediction{succeeded(`["https://replicate.delivery/img.jpg"]`)}}
	image := NewAdapter(ImageCapability(""), client, AdapterOptions{})

	res := image.Generate(context.Background(), ImageRequest{
		Prompt:      "a mayor on a podium",
		InputImage:  "javascript:alert(1)",
		AspectRatio: AspectMatchInput,
	})

	require.True(t, res.Succeeded(), "unexpected failure: %v", res.Err())
	assert.Equal(t, "https://replicate.delivery/img.jpg", res.ArtifactURL)
	require.Len(t, client.creates, 1)
	input := client.creates[0].Input
	assert.NotContains(t, input, "input_image")
	assert.Equal(t, Aspect1x1, input["aspect_ratio"])
	assert.Equal(t, FormatJPG, input["output_format"])
	assert.Equal(t, DefaultSafetyTolerance, input["safety_tolerance"])
}

func TestImageKeepsHTTPReferenceImage(t *testing.T) {
	client := &fakePredictor{}
	image := NewAdapter(ImageCapability(""), client, AdapterOptions{})

	res := image.Generate(context.Background(), ImageRequest{Prompt: "p", InputImage: "https://cdn.example.com/me.png"})
	require.True(t, res.Succeeded())
	assert.Equal(t, "https://cdn.example.com/me.png", client.creates[0].Input["input_image"])
	assert.Equal(t, AspectMatchInput, client.creates[0].Input["aspect_ratio"])
}

func TestValidationFailsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name string
		run  func(*fakePredictor) domain.Result
	}{
		{name: "video data url", run: func(c *fakePredictor) domain.Result {
			return NewAdapter(VideoCapability(""), c, AdapterOptions{}).Generate(context.Background(),
				VideoRequest{Prompt: "dance", Image: "data:image/png;base64,AAAA"})
		}},
		{name: "video blob url", run: func(c *fakePredictor) domain.Result {
			return NewAdapter(VideoCapability(""), c, AdapterOptions{}).Generate(context.Background(),
				VideoRequest{Prompt: "dance", Image: "blob:http://localhost/123"})
		}},
		{name: "text without prompt", run: func(c *fakePredictor) domain.Result {
			return NewAdapter(TextCapability(""), c, AdapterOptions{}).Generate(context.Background(), TextRequest{})
		}},
		{name: "image bad aspect", run: func(c *fakePredictor) domain.Result {
			return NewAdapter(ImageCapability(""), c, AdapterOptions{}).Generate(context.Background(),
				ImageRequest{Prompt: "p", AspectRatio: "2:1"})
		}},
		{name: "music without lyrics", run: func(c *fakePredictor) domain.Result {
			return NewAdapter(MusicCapability(""), c, AdapterOptions{Cache: cache.NewMemoryStore(0)}).Generate(context.Background(),
				MusicRequest{Lyrics: "   "})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakePredictor{}
			res := tt.run(client)
			assert.Equal(t, domain.ResultFailed, res.Status)
			assert.Equal(t, domain.KindValidation, res.Failure.Kind)
			assert.Zero(t, client.calls())
		})
	}
}

func TestMissingCredentialsIsConfigurationError(t *testing.T) {
	client := &fakePredictor{noToken: true}
	res := NewAdapter(TextCapability(""), client, AdapterOptions{}).Generate(context.Background(), TextRequest{Prompt: "hi"})

	require.Equal(t, domain.ResultFailed, res.Status)
	assert.Equal(t, domain.KindConfiguration, res.Failure.Kind)
	assert.ErrorIs(t, res.Err(), domain.ErrMissingAPIToken)
	assert.Zero(t, client.calls())
}

func TestTextJoinsOutputTokens(t *testing.T) {
	client := &fakePredictor{responses: []*replicate.Prediction{succeeded(`["Yo ","Blue ","in the house"]`)}}
	res := NewAdapter(TextCapability(""), client, AdapterOptions{}).Generate(context.Background(), TextRequest{
		Prompt:       "write a rap",
		SystemPrompt: "You are a talented rap songwriter.",
	})

	require.True(t, res.Succeeded())
	assert.Equal(t, "Yo Blue in the house", res.Text)
	input := client.creates[0].Input
	assert.Equal(t, "medium", input["verbosity"])
	assert.Equal(t, "minimal", input["reasoning_effort"])
	assert.Equal(t, 4096, input["max_completion_tokens"])
	assert.Equal(t, "You are a talented rap songwriter.", input["system_prompt"])
}

func TestVideoPendingPredictionIsPolled(t *testing.T) {
	pending := &replicate.Prediction{ID: "v1", Status: replicate.StatusStarting}
	pending.URLs.Get = "https://api.replicate.com/v1/predictions/v1"
	client := &fakePredictor{
		responses:   []*replicate.Prediction{pending},
		awaitResult: succeeded(`"https://replicate.delivery/clip.mp4"`),
	}
	video := NewAdapter(VideoCapability(""), client, AdapterOptions{})
	req := VideoRequest{Prompt: "rap", Image: "https://cdn.example.com/blue.jpg", AudioURL: "https://cdn.example.com/song.mp3"}

	submitted := video.Submit(context.Background(), req)
	require.Equal(t, domain.ResultPending, submitted.Status)
	assert.Equal(t, pending.URLs.Get, submitted.PollURL)

	client.responses = []*replicate.Prediction{pending}
	res := video.Generate(context.Background(), req)
	require.True(t, res.Succeeded(), "unexpected failure: %v", res.Err())
	assert.Equal(t, "https://replicate.delivery/clip.mp4", res.ArtifactURL)
	assert.Equal(t, "https://cdn.example.com/song.mp3", res.Metadata["audio"])
	assert.Equal(t, 1, client.awaits)

	input := client.creates[0].Input
	assert.Equal(t, DefaultVideoDurationS, input["duration"])
	assert.Equal(t, true, input["go_fast"])
	assert.Equal(t, false, input["prompt_optimizer"])
	assert.Equal(t, "https://cdn.example.com/blue.jpg", input["first_frame_image"])
}

func TestVideoFailureNamesCapability(t *testing.T) {
	pending := &replicate.Prediction{ID: "v1", Status: replicate.StatusProcessing}
	pending.URLs.Get = "https://api.replicate.com/v1/predictions/v1"
	client := &fakePredictor{
		responses: []*replicate.Prediction{pending},
		awaitErr:  &domain.Error{Kind: domain.KindUpstreamFailure, Message: "Unknown error", Err: replicate.ErrPredictionFailed},
	}
	res := NewAdapter(VideoCapability(""), client, AdapterOptions{}).Generate(context.Background(),
		VideoRequest{Prompt: "rap", Image: "https://cdn.example.com/blue.jpg"})

	require.Equal(t, domain.ResultFailed, res.Status)
	assert.Equal(t, "Video generation failed: Unknown error", res.Failure.Message)
	assert.Equal(t, domain.KindUpstreamFailure, res.Failure.Kind)
}

func TestVideoTimeoutIsDistinct(t *testing.T) {
	pending := &replicate.Prediction{ID: "v1", Status: replicate.StatusProcessing}
	pending.URLs.Get = "https://api.replicate.com/v1/predictions/v1"
	client := &fakePredictor{
		responses: []*replicate.Prediction{pending},
		awaitErr:  domain.NewTimeoutError("timed out after 5 minutes", replicate.ErrPollLimit),
	}
	res := NewAdapter(VideoCapability(""), client, AdapterOptions{}).Generate(context.Background(),
		VideoRequest{Prompt: "rap", Image: "https://cdn.example.com/blue.jpg"})

	assert.Equal(t, domain.KindTimeout, res.Failure.Kind)
	assert.Equal(t, "Video generation timed out after 5 minutes", res.Failure.Message)
	assert.ErrorIs(t, res.Err(), replicate.ErrPollLimit)
}

func TestQueueFullExhaustionMessage(t *testing.T) {
	client := &fakePredictor{createErr: domain.NewTransientError("Queue is full", 200, 0, nil)}
	res := NewAdapter(VideoCapability(""), client, AdapterOptions{}).Generate(context.Background(),
		VideoRequest{Prompt: "rap", Image: "https://cdn.example.com/blue.jpg"})

	assert.Equal(t, domain.KindTransientUpstream, res.Failure.Kind)
	assert.Equal(t, "Video generation queue is full. Please try again later.", res.Failure.Message)
}

func TestCanceledContextIsReported(t *testing.T) {
	client := &fakePredictor{createErr: context.Canceled}
	res := NewAdapter(ImageCapability(""), client, AdapterOptions{}).Generate(context.Background(), ImageRequest{Prompt: "p"})

	assert.True(t, errors.Is(res.Err(), context.Canceled))
}

func TestCharacterImageIsCachedPerName(t *testing.T) {
	client := &fakePredictor{responses: []*replicate.Prediction{succeeded(`"https://replicate.delivery/jk.jpg"`)}}
	store := cache.NewMemoryStore(0)
	adapter := NewAdapter(CharacterImageCapability(""), client, AdapterOptions{Cache: store})
	req := CharacterImageRequest{CharacterName: "Jungkook (BTS)", Prompt: "Jungkook from BTS"}

	first := adapter.Generate(context.Background(), req)
	require.True(t, first.Succeeded())
	assert.Equal(t, Aspect16x9, client.creates[0].Input["aspect_ratio"])

	entry, ok := store.Get(context.Background(), "character-image-jungkook-(bts)")
	require.True(t, ok)
	assert.Equal(t, "https://replicate.delivery/jk.jpg", entry.URL)

	second := adapter.Generate(context.Background(), req)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, client.calls())
}

func TestCampaignVideoMergesDefaults(t *testing.T) {
	client := &fakePredictor{}
	seed := 42
	fixed := true
	res := NewAdapter(CampaignVideoCapability(""), client, AdapterOptions{}).Generate(context.Background(), CampaignVideoRequest{
		Prompt:      "rally",
		Duration:    10,
		CameraFixed: &fixed,
		Seed:        &seed,
	})
	require.True(t, res.Succeeded())

	input := client.creates[0].Input
	assert.Equal(t, 24, input["fps"])
	assert.Equal(t, 10, input["duration"])
	assert.Equal(t, "720p", input["resolution"])
	assert.Equal(t, Aspect16x9, input["aspect_ratio"])
	assert.Equal(t, true, input["camera_fixed"])
	assert.Equal(t, 42, input["seed"])
}

func TestCaptionDefaults(t *testing.T) {
	client := &fakePredictor{responses: []*replicate.Prediction{succeeded(`"A person waves at the camera."`)}}
	res := NewAdapter(CaptionCapability(""), client, AdapterOptions{}).Generate(context.Background(), CaptionRequest{
		Media: "https://api.replicate.com/v1/files/f1",
	})
	require.True(t, res.Succeeded())
	assert.Equal(t, "A person waves at the camera.", res.Text)
	assert.Equal(t, DefaultCaptionPrompt, client.creates[0].Input["prompt"])
	assert.Equal(t, DefaultCaptionMaxTokens, client.creates[0].Input["max_new_tokens"])
}
