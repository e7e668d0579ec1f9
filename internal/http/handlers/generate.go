package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"bethemayor/internal/catalog"
	"bethemayor/internal/domain"
	"bethemayor/internal/generation"
	"bethemayor/internal/storage"
)

func (a *App) GenerateText(w http.ResponseWriter, r *http.Request) {
	var req generation.TextRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res := a.Gen.Text.Generate(r.Context(), req)
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"text": res.Text})
}

func (a *App) GenerateMusic(w http.ResponseWriter, r *http.Request) {
	var req generation.MusicRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res := a.Gen.Music.Generate(r.Context(), req)
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"audioUrl": res.ArtifactURL, "cached": res.Cached})
}

type imageGenerateRequest struct {
	Type          string `json:"type"`
	Description   string `json:"description"`
	SelectedCity  string `json:"selectedCity"`
	CampaignStyle string `json:"campaignStyle"`
}

// GenerateImage dispatches on type: "avatar" or "campaign-poster".
func (a *App) GenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Type) == "" || strings.TrimSpace(req.Description) == "" {
		a.fail(w, r, domain.NewValidationError("Type and description are required"))
		return
	}
	var (
		imgReq generation.ImageRequest
		err    error
	)
	switch req.Type {
	case "avatar":
		imgReq = a.avatarRequest(req.Description)
	case "campaign-poster":
		imgReq, err = a.posterRequest(req.Description, req.SelectedCity, req.CampaignStyle)
	default:
		err = domain.NewValidationError(`Invalid type. Must be "avatar" or "campaign-poster"`)
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondImage(w, r, imgReq)
}

func (a *App) GenerateAvatar(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		a.fail(w, r, domain.NewValidationError("Description is required"))
		return
	}
	a.respondImage(w, r, a.avatarRequest(req.Description))
}

func (a *App) GenerateCampaignPoster(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		a.fail(w, r, domain.NewValidationError("Description is required"))
		return
	}
	imgReq, err := a.posterRequest(req.Description, req.SelectedCity, req.CampaignStyle)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respondImage(w, r, imgReq)
}

func (a *App) avatarRequest(description string) generation.ImageRequest {
	return generation.ImageRequest{
		Prompt:      a.Catalog.AvatarPrompt(description),
		InputImage:  a.Catalog.ReferenceImage,
		AspectRatio: generation.AspectMatchInput,
	}
}

func (a *App) posterRequest(description, city, styleID string) (generation.ImageRequest, error) {
	if strings.TrimSpace(city) == "" || strings.TrimSpace(styleID) == "" {
		return generation.ImageRequest{}, domain.NewValidationError("Selected city and campaign style are required for campaign poster")
	}
	style, cityData, err := a.campaign(city, styleID)
	if err != nil {
		return generation.ImageRequest{}, err
	}
	return generation.ImageRequest{
		Prompt:      a.Catalog.PosterPrompt(style, description, cityData),
		InputImage:  a.Catalog.ReferenceImage,
		AspectRatio: generation.AspectMatchInput,
	}, nil
}

func (a *App) campaign(city, styleID string) (catalog.CampaignStyle, catalog.City, error) {
	style, ok := a.Catalog.CampaignStyle(styleID)
	if !ok {
		return catalog.CampaignStyle{}, catalog.City{}, domain.NewValidationError("Invalid campaign style")
	}
	cityData, _ := a.Catalog.City(city)
	return style, cityData, nil
}

func (a *App) respondImage(w http.ResponseWriter, r *http.Request, req generation.ImageRequest) {
	res := a.Gen.Image.Generate(r.Context(), req)
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"imageUrl": res.ArtifactURL})
}

type campaignVideoRequest struct {
	Description   string `json:"description"`
	SelectedCity  string `json:"selectedCity"`
	CampaignStyle string `json:"campaignStyle"`
	VideoSettings struct {
		FPS         int    `json:"fps"`
		Duration    int    `json:"duration"`
		Resolution  string `json:"resolution"`
		AspectRatio string `json:"aspect_ratio"`
		CameraFixed *bool  `json:"camera_fixed"`
		Seed        *int   `json:"seed"`
		Image       string `json:"image"`
	} `json:"videoSettings"`
}

func (a *App) GenerateCampaignVideo(w http.ResponseWriter, r *http.Request) {
	var req campaignVideoRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" || strings.TrimSpace(req.SelectedCity) == "" || strings.TrimSpace(req.CampaignStyle) == "" {
		a.fail(w, r, domain.NewValidationError("Description, selected city, and campaign style are required"))
		return
	}
	style, city, err := a.campaign(req.SelectedCity, req.CampaignStyle)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	vs := req.VideoSettings
	res := a.Gen.CampaignVideo.Generate(r.Context(), generation.CampaignVideoRequest{
		Prompt:      a.Catalog.CampaignVideoPrompt(style, req.Description, city),
		FPS:         vs.FPS,
		Duration:    vs.Duration,
		Resolution:  vs.Resolution,
		AspectRatio: vs.AspectRatio,
		CameraFixed: vs.CameraFixed,
		Seed:        vs.Seed,
		Image:       vs.Image,
	})
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"videoUrl": res.ArtifactURL})
}

type characterImageRequest struct {
	CharacterName        string `json:"characterName"`
	CharacterDescription string `json:"characterDescription"`
}

// GetCharacterImage returns the cached portrait for a character, generating
// it on first use.
func (a *App) GetCharacterImage(w http.ResponseWriter, r *http.Request) {
	var req characterImageRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	name := strings.TrimSpace(req.CharacterName)
	prompt := strings.TrimSpace(req.CharacterDescription)
	if ch, ok := a.Catalog.Character(name); ok {
		name = ch.Name
		if prompt == "" {
			prompt = ch.ImagePrompt
		}
	}
	if name == "" || prompt == "" {
		a.fail(w, r, domain.NewValidationError("Character name and description are required"))
		return
	}
	res := a.Gen.CharacterImage.Generate(r.Context(), generation.CharacterImageRequest{CharacterName: name, Prompt: prompt})
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	if cached, ok := res.Metadata["characterPrompt"].(string); ok && cached != "" {
		prompt = cached
	}
	a.json(w, http.StatusOK, map[string]any{
		"imageUrl":        res.ArtifactURL,
		"characterPrompt": prompt,
		"cached":          res.Cached,
	})
}

// GenerateCombinedImage places the celebrity into a cinematic first frame.
// The screenshot is required for parity with the capture flow, but only the
// celebrity image is sent upstream.
func (a *App) GenerateCombinedImage(w http.ResponseWriter, r *http.Request) {
	const missing = "Video file and celebrity image URL are required"
	if _, _, err := formFile(w, r, "videoFile", missing, a.Uploads.MaxBytes(storage.MediaVideo)); err != nil {
		a.fail(w, r, err)
		return
	}
	celebrity := formValue(r, "celebrityImageUrl")
	if celebrity == "" {
		a.fail(w, r, domain.NewValidationError(missing))
		return
	}
	if !generation.IsRemoteURL(celebrity) {
		a.fail(w, r, domain.NewValidationError("celebrityImageUrl must be an http(s) URL"))
		return
	}
	res := a.Gen.Image.Generate(r.Context(), generation.ImageRequest{
		Prompt:       a.Catalog.CombinedImagePrompt,
		InputImage:   celebrity,
		AspectRatio:  generation.Aspect16x9,
		OutputFormat: generation.FormatJPG,
	})
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	a.json(w, http.StatusOK, map[string]any{"combinedImageUrl": res.ArtifactURL})
}

type videoGenerateRequest struct {
	Prompt    string `json:"prompt"`
	Image     string `json:"image"`
	Duration  int    `json:"duration"`
	Audio     string `json:"audio"`
	Character string `json:"character"`
}

// GenerateVideo accepts JSON or form fields. Without a prompt, a known
// character's performance prompt is used.
func (a *App) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoGenerateRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := decode(w, r, &req); err != nil {
			a.fail(w, r, err)
			return
		}
	} else {
		req.Prompt = formValue(r, "prompt")
		req.Image = formValue(r, "image")
		req.Audio = formValue(r, "audio")
		req.Character = formValue(r, "character")
		if d := formValue(r, "duration"); d != "" {
			n, err := strconv.Atoi(d)
			if err != nil {
				a.fail(w, r, domain.NewValidationError("duration must be a number"))
				return
			}
			req.Duration = n
		}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		if ch, ok := a.Catalog.Character(req.Character); ok {
			req.Prompt = a.Catalog.RapVideoPrompt(ch)
		}
	}
	res := a.Gen.Video.Generate(r.Context(), generation.VideoRequest{
		Prompt:          req.Prompt,
		Image:           req.Image,
		DurationSeconds: req.Duration,
		AudioURL:        req.Audio,
	})
	if !res.Succeeded() {
		a.fail(w, r, res.Err())
		return
	}
	resp := map[string]any{"videoUrl": res.ArtifactURL}
	if req.Audio != "" {
		resp["audioUrl"] = req.Audio
	}
	a.json(w, http.StatusOK, resp)
}
