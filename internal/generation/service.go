package generation

import (
	"bethemayor/internal/cache"
	"bethemayor/internal/infra"
)

// Models selects the upstream model per capability. Empty fields use the
// package defaults.
type Models struct {
	Text          string
	Music         string
	Image         string
	Video         string
	CampaignVideo string
	Caption       string
}

// ModelsFromConfig reads the model identifiers from cfg.
func ModelsFromConfig(cfg *infra.Config) Models {
	return Models{
		Text:          cfg.TextModel,
		Music:         cfg.MusicModel,
		Image:         cfg.ImageModel,
		Video:         cfg.VideoModel,
		CampaignVideo: cfg.CampaignVideoModel,
		Caption:       cfg.CaptionModel,
	}
}

// ServiceOptions wires the adapters' shared collaborators.
type ServiceOptions struct {
	Client Predictor
	Cache  cache.Store
	Logger *infra.Logger
	Models Models
}

// Service bundles one adapter per capability.
type Service struct {
	Text           *Adapter[TextRequest]
	Music          *Adapter[MusicRequest]
	Image          *Adapter[ImageRequest]
	CharacterImage *Adapter[CharacterImageRequest]
	Video          *Adapter[VideoRequest]
	CampaignVideo  *Adapter[CampaignVideoRequest]
	Caption        *Adapter[CaptionRequest]
}

// NewService builds every adapter against the same client and cache.
func NewService(opts ServiceOptions) *Service {
	adapterOpts := AdapterOptions{Cache: opts.Cache, Logger: opts.Logger}
	m := opts.Models
	return &Service{
		Text:           NewAdapter(TextCapability(m.Text), opts.Client, adapterOpts),
		Music:          NewAdapter(MusicCapability(m.Music), opts.Client, adapterOpts),
		Image:          NewAdapter(ImageCapability(m.Image), opts.Client, adapterOpts),
		CharacterImage: NewAdapter(CharacterImageCapability(m.Image), opts.Client, adapterOpts),
		Video:          NewAdapter(VideoCapability(m.Video), opts.Client, adapterOpts),
		CampaignVideo:  NewAdapter(CampaignVideoCapability(m.CampaignVideo), opts.Client, adapterOpts),
		Caption:        NewAdapter(CaptionCapability(m.Caption), opts.Client, adapterOpts),
	}
}
