package broadcast

import (
	"echowaves-backend/internal/domain"
	"echowaves-backend/pkg/sanitize"
)

// EventMessageHidden marks a retraction payload
const EventMessageHidden = "message_hidden"

// Payload is the JSON document published for an admitted message
type Payload struct {
	Meta       Meta            `json:"meta"`
	Message    MessageData     `json:"message"`
	Attachment *AttachmentData `json:"attachment,omitempty"`
	Convo      ConvoData       `json:"convo"`
	User       UserData        `json:"user"`
}

type Meta struct {
	IsSystemMessage bool `json:"is_system_message"`
	HasAttachment   bool `json:"has_attachment"`
	HasImage        bool `json:"has_image"`
	HasPDF          bool `json:"has_pdf"`
	HasZip          bool `json:"has_zip"`
}

type MessageData struct {
	ID           int64  `json:"id"`
	RenderedBody string `json:"rendered_body"`
	RawBody      string `json:"raw_body"`
	DisplayDate  string `json:"display_date"`
	DisplayTime  string `json:"display_time"`
}

// AttachmentData carries dimensions only for images
type AttachmentData struct {
	ImageURL string `json:"image_url,omitempty"`
	URL      string `json:"url,omitempty"`
	Height   *int   `json:"height,omitempty"`
	Width    *int   `json:"width,omitempty"`
}

type ConvoData struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserData struct {
	ID                     int64  `json:"id"`
	Login                  string `json:"login"`
	AvatarURL              string `json:"avatar_url"`
	MemberSince            string `json:"member_since"`
	ConversationsStarted   int64  `json:"conversations_started"`
	MessagesPosted         int64  `json:"messages_posted"`
	FollowingCount         int64  `json:"following_count"`
	FollowersCount         int64  `json:"followers_count"`
	PersonalConversationID *int64 `json:"personal_conversation_id"`
}

// RetractionPayload tells listeners to drop a message they already rendered
type RetractionPayload struct {
	Event   string      `json:"event"`
	Message RetractedID `json:"message"`
	Convo   ConvoData   `json:"convo"`
}

type RetractedID struct {
	ID int64 `json:"id"`
}

// AttachmentURLs are the resolved links for a message attachment
type AttachmentURLs struct {
	Original string
	Big      string
}

// BuildPayload assembles the broadcast document for msg
func BuildPayload(msg *domain.Message, conv *domain.Conversation, author *domain.UserProfile, urls AttachmentURLs) *Payload {
	p := &Payload{
		Meta: Meta{
			IsSystemMessage: msg.SystemMessage,
			HasAttachment:   msg.HasAttachment(),
			HasImage:        msg.HasImage(),
			HasPDF:          msg.HasPDF(),
			HasZip:          msg.HasZip(),
		},
		Message: MessageData{
			ID:           msg.ID,
			RenderedBody: msg.BodyHTML,
			RawBody:      msg.Body,
			DisplayDate:  msg.DisplayDate(),
			DisplayTime:  msg.DisplayTime(),
		},
		Convo: convoData(conv),
		User: UserData{
			ID:                     author.ID,
			Login:                  sanitize.Parameterize(author.Login),
			AvatarURL:              author.GravatarURL(),
			MemberSince:            author.MemberSince(),
			ConversationsStarted:   author.ConversationsCount,
			MessagesPosted:         author.MessagesCount,
			FollowingCount:         author.FollowingCount,
			FollowersCount:         author.FollowersCount,
			PersonalConversationID: author.PersonalConversationID,
		},
	}

	if msg.HasAttachment() {
		a := &AttachmentData{URL: urls.Original}
		if msg.HasImage() {
			a.ImageURL = urls.Big
			a.Height = msg.Attachment.Height
			a.Width = msg.Attachment.Width
		}
		p.Attachment = a
	}

	return p
}

// BuildRetraction assembles the message_hidden event
func BuildRetraction(messageID int64, conv *domain.Conversation) *RetractionPayload {
	return &RetractionPayload{
		Event:   EventMessageHidden,
		Message: RetractedID{ID: messageID},
		Convo:   convoData(conv),
	}
}

func convoData(conv *domain.Conversation) ConvoData {
	return ConvoData{ID: conv.ID, Name: sanitize.Parameterize(conv.Name)}
}
