package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestConversationDeletedByAll(t *testing.T) {
	userA, userB := uuid.New(), uuid.New()
	conv := &Conversation{Participants: []uuid.UUID{userA, userB}}

	if conv.DeletedByAll() {
		t.Fatal("empty deletedBy must not count as full coverage")
	}

	conv.DeletedBy = []uuid.UUID{userA}
	if conv.DeletedByAll() {
		t.Fatal("partial coverage must not trigger purge")
	}

	conv.DeletedBy = append(conv.DeletedBy, userB)
	if !conv.DeletedByAll() {
		t.Fatal("full coverage must report deleted by all")
	}

	// Пометка вышедшего участника не считается
	empty := &Conversation{DeletedBy: []uuid.UUID{userA}}
	if empty.DeletedByAll() {
		t.Fatal("conversation without participants must never purge")
	}
}

func TestAttachmentTypeLabel(t *testing.T) {
	cases := map[AttachmentType]string{
		AttachmentImage: "Image",
		AttachmentGIF:   "GIF",
		AttachmentVideo: "Video",
		AttachmentAudio: "Audio",
		AttachmentFile:  "File",
	}
	for typ, want := range cases {
		if got := typ.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", typ, got, want)
		}
	}
}
