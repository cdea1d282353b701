// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package pubsub

import (
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub/v2/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mia-platform/transfer/internal/config"
	"github.com/mia-platform/transfer/internal/destination"
	"github.com/mia-platform/transfer/internal/registry"
)

func newTestDestination(t *testing.T) (*Destination, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	dest := &Destination{
		projectID: "test-project",
		topicID:   "exports",
		clientOptions: []option.ClientOption{
			option.WithEndpoint(srv.Addr),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			option.WithTelemetryDisabled(),
		},
	}
	t.Cleanup(func() { _ = dest.Close(t.Context()) })

	return dest, srv
}

func TestNewDestination(t *testing.T) {
	testCases := map[string]struct {
		env             map[string]string
		options         map[string]any
		expectedProject string
		expectedTopic   string
		expectedErr     error
	}{
		"from env": {
			env: map[string]string{
				"GOOGLE_CLOUD_PUBSUB_PROJECT": "project",
				"GOOGLE_CLOUD_PUBSUB_TOPIC":   "topic",
			},
			expectedProject: "project",
			expectedTopic:   "topic",
		},
		"options override env": {
			env: map[string]string{
				"GOOGLE_CLOUD_PUBSUB_PROJECT": "project",
				"GOOGLE_CLOUD_PUBSUB_TOPIC":   "topic",
			},
			options:         map[string]any{"topic": "assets"},
			expectedProject: "project",
			expectedTopic:   "assets",
		},
		"missing project": {
			env:         map[string]string{"GOOGLE_CLOUD_PUBSUB_TOPIC": "topic"},
			expectedErr: ErrMissingEnvVariable,
		},
		"missing topic": {
			env:         map[string]string{"GOOGLE_CLOUD_PUBSUB_PROJECT": "project"},
			expectedErr: ErrMissingEnvVariable,
		},
		"unknown option": {
			options:     map[string]any{"subscription": "sub"},
			expectedErr: config.ErrValidation,
		},
	}

	for testName, test := range testCases {
		t.Run(testName, func(t *testing.T) {
			t.Setenv("GOOGLE_CLOUD_PUBSUB_PROJECT", test.env["GOOGLE_CLOUD_PUBSUB_PROJECT"])
			t.Setenv("GOOGLE_CLOUD_PUBSUB_TOPIC", test.env["GOOGLE_CLOUD_PUBSUB_TOPIC"])

			dest, err := NewDestination(test.options)
			if test.expectedErr != nil {
				assert.ErrorIs(t, err, test.expectedErr)
				assert.ErrorIs(t, err, ErrPubSubDestination)
				assert.Nil(t, dest)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expectedProject, dest.projectID)
			assert.Equal(t, test.expectedTopic, dest.topicID)
			assert.Equal(t, "projects/"+test.expectedProject+"/topics/"+test.expectedTopic, dest.topicName())
		})
	}
}

func TestInstallPublishUninstall(t *testing.T) {
	t.Parallel()

	dest, srv := newTestDestination(t)
	ctx := t.Context()

	success, log, err := dest.Install(ctx)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, []string{" > topic `projects/test-project/topics/exports` created"}, log)

	success, log, err = dest.Install(ctx)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, []string{" > topic `projects/test-project/topics/exports` already exists"}, log)

	batch := []*destination.Data{
		{APIVersion: "v1", ItemFamily: "buckets", Name: "bucket-1", Data: map[string]any{"size": 10}},
		{APIVersion: "v1", ItemFamily: "buckets", Name: "bucket-2"},
	}
	require.NoError(t, dest.SendBatch(ctx, batch))
	require.NoError(t, dest.SendBatch(ctx, nil))

	messages := srv.Messages()
	require.Len(t, messages, 2)

	operations := map[string]string{}
	for _, message := range messages {
		assert.Equal(t, "projects/test-project/topics/exports", message.Topic)
		assert.Equal(t, "buckets", message.Attributes[itemFamilyAttribute])
		assert.Equal(t, "v1", message.Attributes[apiVersionAttribute])

		var payload map[string]any
		require.NoError(t, json.Unmarshal(message.Data, &payload))
		name, _ := payload["name"].(string)
		operations[name] = message.Attributes[operationAttribute]
		assert.Equal(t, message.Attributes[operationAttribute], payload["operation"])
	}
	assert.Equal(t, map[string]string{"bucket-1": "upsert", "bucket-2": "delete"}, operations)

	success, log, err = dest.Uninstall(ctx)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, []string{" > topic `projects/test-project/topics/exports` deleted"}, log)

	success, log, err = dest.Uninstall(ctx)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Equal(t, []string{" > topic `projects/test-project/topics/exports` does not exist"}, log)
}

func TestUninstallMissingTopic(t *testing.T) {
	t.Parallel()

	dest, _ := newTestDestination(t)
	models := registry.New(map[string]registry.Spec{
		"exports": {
			Tags: []string{"all"},
			Definition: &registry.Definition{
				Description: registry.Description{ID: "exports", Provider: "pubsub"},
				OnInstall:   dest.Install,
				OnUninstall: dest.Uninstall,
			},
		},
	})

	for range 2 {
		result, err := registry.Uninstall(t.Context(), models, "all")
		require.NoError(t, err)
		assert.Equal(t, []registry.Change{{ID: "exports", Success: true}}, result.Changes)
		assert.Equal(t, []string{" > topic `projects/test-project/topics/exports` does not exist"}, result.Log)
		require.Len(t, result.Models, 1)
		assert.False(t, result.Models[0].Exists)
	}
}

func TestPublishOnMissingTopic(t *testing.T) {
	t.Parallel()

	dest, _ := newTestDestination(t)

	err := dest.SendData(t.Context(), &destination.Data{APIVersion: "v1", ItemFamily: "buckets", Name: "bucket-1", Data: map[string]any{}})
	assert.ErrorIs(t, err, ErrPubSubDestination)
	assert.ErrorContains(t, err, "NotFound")
}

func TestCloseWithoutClient(t *testing.T) {
	t.Parallel()

	dest := &Destination{projectID: "test-project", topicID: "exports"}
	assert.NoError(t, dest.Close(t.Context()))
}
