package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordUpload(t *testing.T) {
	okBefore := testutil.ToFloat64(UploadsTotal.WithLabelValues("image", "success"))
	bytesBefore := testutil.ToFloat64(UploadBytesTotal.WithLabelValues("image"))
	failedBefore := testutil.ToFloat64(UploadsTotal.WithLabelValues("video", "failed"))
	videoBytesBefore := testutil.ToFloat64(UploadBytesTotal.WithLabelValues("video"))

	RecordUpload("image", "success", 100, 2)
	RecordUpload("video", "failed", 5000, 3)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(UploadsTotal.WithLabelValues("image", "success")))
	assert.Equal(t, bytesBefore+100, testutil.ToFloat64(UploadBytesTotal.WithLabelValues("image")))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(UploadsTotal.WithLabelValues("video", "failed")))
	// failed uploads do not count towards stored bytes
	assert.Equal(t, videoBytesBefore, testutil.ToFloat64(UploadBytesTotal.WithLabelValues("video")))
}

func TestRecordRemoteOperation(t *testing.T) {
	before := testutil.ToFloat64(RemoteOperationsTotal.WithLabelValues("cloudinary", "upload", "ok"))
	otherBefore := testutil.ToFloat64(RemoteOperationsTotal.WithLabelValues("minio", "destroy", "not_found"))

	RecordRemoteOperation("cloudinary", "upload", "ok", 0.1)
	RecordRemoteOperation("cloudinary", "upload", "ok", 0.2)

	assert.Equal(t, before+2, testutil.ToFloat64(RemoteOperationsTotal.WithLabelValues("cloudinary", "upload", "ok")))
	assert.Equal(t, otherBefore, testutil.ToFloat64(RemoteOperationsTotal.WithLabelValues("minio", "destroy", "not_found")))
	assert.Positive(t, testutil.CollectAndCount(RemoteDuration, "petmarket_media_remote_duration_seconds"))
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/api/media", "200"))

	RecordRequest("GET", "/api/media", "200", 0.01)

	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/api/media", "200")))
}
