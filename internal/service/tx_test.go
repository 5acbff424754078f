package service

import "context"

type testTxRepos struct {
	documents DocumentRepositoryInterface
	chunks    ChunkRepositoryInterface
	turns     ConversationRepositoryInterface
	artifacts ArtifactRepositoryInterface
	indexJobs IndexJobRepositoryInterface
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) Turns() ConversationRepositoryInterface {
	return t.turns
}

func (t *testTxRepos) Artifacts() ArtifactRepositoryInterface {
	return t.artifacts
}

func (t *testTxRepos) IndexJobs() IndexJobRepositoryInterface {
	return t.indexJobs
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
