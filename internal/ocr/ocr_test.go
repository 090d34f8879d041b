package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTextract struct {
	started *textract.StartDocumentTextDetectionInput
	pages   map[string]*textract.GetDocumentTextDetectionOutput
	detect  *textract.DetectDocumentTextOutput
	err     error
}

func (f *fakeTextract) StartDocumentTextDetection(ctx context.Context, in *textract.StartDocumentTextDetectionInput, _ ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error) {
	f.started = in
	if f.err != nil {
		return nil, f.err
	}
	return &textract.StartDocumentTextDetectionOutput{JobId: aws.String("tx-1")}, nil
}

func (f *fakeTextract) GetDocumentTextDetection(ctx context.Context, in *textract.GetDocumentTextDetectionInput, _ ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[aws.ToString(in.NextToken)], nil
}

func (f *fakeTextract) DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	return f.detect, f.err
}

func line(text string, confidence float32) types.Block {
	return types.Block{BlockType: types.BlockTypeLine, Text: aws.String(text), Confidence: aws.Float32(confidence)}
}

func TestTextractStartDocumentUsesBucket(t *testing.T) {
	api := &fakeTextract{}
	tx := NewTextractWithAPI(api, "docs-bucket")

	id, err := tx.StartDocument(context.Background(), "uploads/a.pdf")
	require.NoError(t, err)

	assert.Equal(t, "tx-1", id)
	assert.Equal(t, "docs-bucket", aws.ToString(api.started.DocumentLocation.S3Object.Bucket))
	assert.Equal(t, "uploads/a.pdf", aws.ToString(api.started.DocumentLocation.S3Object.Name))
}

func TestTextractStartDocumentRequiresBucket(t *testing.T) {
	_, err := NewTextractWithAPI(&fakeTextract{}, "").StartDocument(context.Background(), "a.pdf")
	assert.Error(t, err)
}

func TestTextractPollFollowsPagesAndKeepsLineOrder(t *testing.T) {
	api := &fakeTextract{pages: map[string]*textract.GetDocumentTextDetectionOutput{
		"": {
			JobStatus: types.JobStatusSucceeded,
			Blocks: []types.Block{
				{BlockType: types.BlockTypePage},
				line("first", 99.5),
				{BlockType: types.BlockTypeWord, Text: aws.String("first")},
				line("second", 98),
			},
			NextToken: aws.String("p2"),
		},
		"p2": {
			JobStatus: types.JobStatusSucceeded,
			Blocks:    []types.Block{line("third", 97)},
		},
	}}

	res, err := NewTextractWithAPI(api, "b").PollDocument(context.Background(), "tx-1")
	require.NoError(t, err)

	assert.Equal(t, JobSucceeded, res.Status)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, "first\nsecond\nthird", JoinLines(res.Lines))
	assert.InDelta(t, 99.5, res.Lines[0].Confidence, 0.001)
}

func TestTextractPollInProgress(t *testing.T) {
	api := &fakeTextract{pages: map[string]*textract.GetDocumentTextDetectionOutput{
		"": {JobStatus: types.JobStatusInProgress},
	}}

	res, err := NewTextractWithAPI(api, "b").PollDocument(context.Background(), "tx-1")
	require.NoError(t, err)

	assert.False(t, res.Status.Done())
	assert.Empty(t, res.Lines)
}

func TestTextractPollError(t *testing.T) {
	api := &fakeTextract{err: errors.New("throttled")}

	_, err := NewTextractWithAPI(api, "b").PollDocument(context.Background(), "tx-1")

	assert.ErrorContains(t, err, "throttled")
}

func TestTextractExtractBytes(t *testing.T) {
	api := &fakeTextract{detect: &textract.DetectDocumentTextOutput{
		Blocks: []types.Block{line("hello", 90), {BlockType: types.BlockTypeWord}},
	}}

	lines, err := NewTextractWithAPI(api, "").ExtractBytes(context.Background(), []byte("img"))
	require.NoError(t, err)

	assert.Equal(t, []Line{{Text: "hello", Confidence: 90}}, lines)
}

func TestMockExtractor(t *testing.T) {
	m := NewMockExtractor()
	ctx := context.Background()

	id, err := m.StartDocument(ctx, "docs/x.pdf")
	require.NoError(t, err)
	res, err := m.PollDocument(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, JobSucceeded, res.Status)
	assert.Equal(t, MockText("docs/x.pdf"), JoinLines(res.Lines))

	res, err = m.PollDocument(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, res.Status)
}

func TestInspectDocument(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	info, err := InspectDocument(png)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MIME)
	assert.Equal(t, 1, info.Pages)

	_, err = InspectDocument([]byte("just some text"))
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = InspectDocument(nil)
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = InspectDocument([]byte("%PDF-1.4\n% not really a pdf\n"))
	assert.ErrorIs(t, err, ErrUnsupportedDocument)
}
