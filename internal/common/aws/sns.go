// internal/common/aws/sns.go
package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used for SMS alerts.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSClient struct {
	api SNSAPI
}

func NewSNSClient(ctx context.Context, region string) (*SNSClient, error) {
	cfg, err := loadConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return &SNSClient{api: sns.NewFromConfig(cfg)}, nil
}

// NewSNSClientWith wraps an existing API implementation.
func NewSNSClientWith(api SNSAPI) *SNSClient {
	return &SNSClient{api: api}
}

// PublishText sends to a topic when target is an ARN, otherwise to a phone
// number. An empty senderID leaves the carrier default.
func (s *SNSClient) PublishText(ctx context.Context, target, text, senderID string) (string, error) {
	input := &sns.PublishInput{Message: aws.String(text)}
	if strings.HasPrefix(target, "arn:") {
		input.TopicArn = aws.String(target)
	} else {
		input.PhoneNumber = aws.String(target)
	}
	if senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(senderID)},
		}
	}

	out, err := s.api.Publish(ctx, input)
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
