package verification

import (
	"context"

	vision "cloud.google.com/go/vision/apiv1"
	visionpb "google.golang.org/genproto/googleapis/cloud/vision/v1"
	"google.golang.org/api/option"
)

// VisionExtractor implements TextExtractor with Google Cloud Vision text
// detection. The first annotation carries the whole detected blob.
type VisionExtractor struct {
	client *vision.ImageAnnotatorClient
}

func NewVisionExtractor(ctx context.Context, credentialsFile string) (*VisionExtractor, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &VisionExtractor{client: client}, nil
}

func (v *VisionExtractor) ExtractText(ctx context.Context, image []byte) (string, error) {
	annotations, err := v.client.DetectTexts(ctx, &visionpb.Image{Content: image}, nil, 1)
	if err != nil {
		return "", err
	}
	if len(annotations) == 0 {
		return "", nil
	}
	return annotations[0].GetDescription(), nil
}

func (v *VisionExtractor) Close() error {
	return v.client.Close()
}
