package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

type rekognitionAPI interface {
	CreateFaceLivenessSession(ctx context.Context, params *rekognition.CreateFaceLivenessSessionInput, optFns ...func(*rekognition.Options)) (*rekognition.CreateFaceLivenessSessionOutput, error)
	GetFaceLivenessSessionResults(ctx context.Context, params *rekognition.GetFaceLivenessSessionResultsInput, optFns ...func(*rekognition.Options)) (*rekognition.GetFaceLivenessSessionResultsOutput, error)
	CompareFaces(ctx context.Context, params *rekognition.CompareFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.CompareFacesOutput, error)
}

// BiometricService runs Rekognition Face Liveness and CompareFaces. Face
// images given by key are read from bucket.
type BiometricService struct {
	client rekognitionAPI
	bucket string
}

func NewBiometricService(awsCfg awssdk.Config, bucket string) *BiometricService {
	return newBiometricService(rekognition.NewFromConfig(awsCfg), bucket)
}

func newBiometricService(client rekognitionAPI, bucket string) *BiometricService {
	return &BiometricService{client: client, bucket: bucket}
}

func (s *BiometricService) CreateLivenessSession(ctx context.Context) (string, error) {
	out, err := s.client.CreateFaceLivenessSession(ctx, &rekognition.CreateFaceLivenessSessionInput{})
	if err != nil {
		return "", serviceError("rekognition", "create liveness session", err)
	}
	id := awssdk.ToString(out.SessionId)
	if id == "" {
		return "", errors.NewMalformedResultError("rekognition", "liveness session has no id")
	}
	return id, nil
}

func (s *BiometricService) GetLivenessResult(ctx context.Context, sessionID string) (risk.LivenessResult, error) {
	out, err := s.client.GetFaceLivenessSessionResults(ctx, &rekognition.GetFaceLivenessSessionResultsInput{
		SessionId: awssdk.String(sessionID),
	})
	if err != nil {
		return risk.LivenessResult{}, serviceError("rekognition", "get liveness results", err)
	}
	return risk.LivenessResult{
		SessionID:  sessionID,
		Confidence: float64(awssdk.ToFloat32(out.Confidence)),
		Status:     risk.LivenessStatus(out.Status),
	}, nil
}

// CompareFaces returns the highest similarity among matched faces, 0 when
// Rekognition found no match.
func (s *BiometricService) CompareFaces(ctx context.Context, reference, probe fraud.FaceImage) (float64, error) {
	out, err := s.client.CompareFaces(ctx, &rekognition.CompareFacesInput{
		SourceImage:         s.image(reference),
		TargetImage:         s.image(probe),
		SimilarityThreshold: awssdk.Float32(0),
	})
	if err != nil {
		return 0, serviceError("rekognition", "compare faces", err)
	}

	var best float32
	for _, m := range out.FaceMatches {
		if sim := awssdk.ToFloat32(m.Similarity); sim > best {
			best = sim
		}
	}
	return float64(best), nil
}

func (s *BiometricService) image(img fraud.FaceImage) *types.Image {
	if len(img.Bytes) > 0 {
		return &types.Image{Bytes: img.Bytes}
	}
	return &types.Image{S3Object: &types.S3Object{
		Bucket: awssdk.String(s.bucket),
		Name:   awssdk.String(img.Key),
	}}
}
