package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// PublishJob is the queue payload: which post to deliver with which bot.
type PublishJob struct {
	JobID  string `json:"jobId"`
	BotID  string `json:"botId"`
	PostID string `json:"postId"`
}

func (p *Producer) EnqueuePublish(ctx context.Context, jobID, botID, postID string) error {
	job := PublishJob{JobID: jobID, BotID: botID, PostID: postID}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	// One FIFO group per bot: jobs for the same destination stay ordered,
	// different bots interleave freely.
	groupID := messageGroupIDBucketed(botID, defaultGroupBuckets)
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               &p.QueueURL,
		MessageBody:            str(string(body)),
		MessageGroupId:         str(groupID),
		MessageDeduplicationId: str(jobID),
	})
	return err
}

const defaultGroupBuckets = 2000

// messageGroupIDBucketed hashes the bot id into a bounded set of FIFO
// groups so queue metadata stays small with many tenants.
func messageGroupIDBucketed(botID string, buckets int) string {
	if buckets <= 0 {
		buckets = defaultGroupBuckets
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(botID))
	return fmt.Sprintf("bot-%d", h.Sum32()%uint32(buckets))
}

func str(s string) *string { return &s }
