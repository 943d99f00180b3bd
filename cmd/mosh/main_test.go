package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"datamosh/pkg/container"
	"datamosh/pkg/pipeline"
	"datamosh/pkg/transcode"
)

func TestParseMeltTargets(t *testing.T) {
	targets, err := parseMeltTargets("3,7, 12", 2)
	require.NoError(t, err)
	require.Equal(t, 3, len(targets))
	require.Equal(t, 7, targets[1].DecodingIndex)
	require.Equal(t, 2, targets[1].RepeatCount)
}

func TestParseMeltTargetsRejectsGarbage(t *testing.T) {
	_, err := parseMeltTargets("3,nope", 1)
	require.Error(t, err)
}

func TestClassifyKind(t *testing.T) {
	kind, err := classifyKind("clip.avi")
	require.NoError(t, err)
	require.Equal(t, container.KindAVI, kind)

	kind, err = classifyKind("clip.h264")
	require.NoError(t, err)
	require.Equal(t, container.KindAnnexBRaw, kind)

	_, err = classifyKind("clip.mkv")
	require.ErrorIs(t, err, container.ErrFormatUnsupported)
}

func TestHintFor(t *testing.T) {
	require.Equal(t, container.HintH264AnnexB, hintFor("clip.h264"))
	require.Equal(t, container.HintMPEG4ASP, hintFor("clip.m4v"))
}

func TestExitForRunErrMapsBakeFreeze(t *testing.T) {
	err := &pipeline.StageError{Stage: "bake", Cause: transcode.ErrFreeze}
	require.Equal(t, exitTranscoderFreeze, exitForRunErr(err))
}

func TestExitForRunErrMapsUnknownToPrepFail(t *testing.T) {
	err := &pipeline.StageError{Stage: "execute", Cause: require.AnError}
	require.Equal(t, exitPrepFail, exitForRunErr(err))
}
