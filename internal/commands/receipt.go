package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/recibot/internal/db"
	"github.com/susu3304/recibot/internal/ocr"
	"github.com/susu3304/recibot/internal/receipt"
	"github.com/susu3304/recibot/internal/ticket"
)

// Receipt drives the whole dialog: item intake (photo or QR), validation,
// voter count entry, the claim UI, and settlement delivery.
type Receipt struct {
	svc    *receipt.Service
	db     *db.DB
	ticket *ticket.Client
	ocr    *ocr.Client

	// Raw items recognized for a channel, held until the user approves
	// them and the session is created.
	mu      sync.Mutex
	pending map[string][]receipt.RawItem
}

func NewReceipt(svc *receipt.Service, database *db.DB, tc *ticket.Client, oc *ocr.Client) *Receipt {
	return &Receipt{
		svc:     svc,
		db:      database,
		ticket:  tc,
		ocr:     oc,
		pending: make(map[string][]receipt.RawItem),
	}
}

// HandleCommand routes /receipt subcommands.
func (r *Receipt) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respondText(s, i, "サブコマンドが指定されていません")
		return
	}

	sub := data.Options[0]
	switch sub.Name {
	case "qr":
		code := getStringOption(sub.Options, "code")
		if code == nil || !ticket.IsQR(*code) {
			respondText(s, i, "QRコードの文字列を認識できませんでした")
			return
		}
		r.handleQR(s, i, *code)
	case "status":
		r.handleStatus(s, i)
	case "result":
		r.handleResult(s, i)
	default:
		respondText(s, i, "未知のサブコマンドです")
	}
}

func (r *Receipt) handleQR(s *discordgo.Session, i *discordgo.InteractionCreate, code string) {
	if !r.ticket.Enabled() {
		respondText(s, i, "チケット照会は設定されていません")
		return
	}
	// Fetching the ticket takes longer than the interaction deadline.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		log.Printf("Failed to defer interaction: %v", err)
		return
	}

	items, err := r.ticket.Items(context.Background(), code)
	if err != nil || len(items) == 0 {
		log.Printf("Ticket lookup failed for channel %s: %v", i.ChannelID, err)
		followUp(s, i, "チケットを取得できませんでした。時間をおいて再度お試しください")
		return
	}

	r.setPending(i.ChannelID, items)
	followUpComponents(s, i, validationMessage(items), validationButtons())
}

// HandlePhoto runs OCR on a posted receipt image and asks for validation.
func (r *Receipt) HandlePhoto(s *discordgo.Session, m *discordgo.MessageCreate, imageURL string) {
	if !r.ocr.Enabled() {
		return
	}
	s.ChannelMessageSend(m.ChannelID, "レシートを読み取っています")

	items, err := r.ocr.Parse(context.Background(), imageURL)
	if err != nil || len(items) == 0 {
		log.Printf("OCR failed for channel %s: %v", m.ChannelID, err)
		s.ChannelMessageSend(m.ChannelID, "レシートを読み取れませんでした。なるべく近くで、フラッシュなしで撮影してください")
		return
	}

	r.setPending(m.ChannelID, items)
	s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:    validationMessage(items),
		Components: validationButtons(),
	})
}

// HandleQRMessage handles a decoded QR string pasted directly into the
// channel, without the slash command.
func (r *Receipt) HandleQRMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !r.ticket.Enabled() {
		return
	}
	items, err := r.ticket.Items(context.Background(), m.Content)
	if err != nil || len(items) == 0 {
		log.Printf("Ticket lookup failed for channel %s: %v", m.ChannelID, err)
		s.ChannelMessageSend(m.ChannelID, "チケットを取得できませんでした。時間をおいて再度お試しください")
		return
	}
	r.setPending(m.ChannelID, items)
	s.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:    validationMessage(items),
		Components: validationButtons(),
	})
}

// HandleComponent routes button and select-menu interactions.
func (r *Receipt) HandleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	switch {
	case customID == "rcpt:ok":
		r.handleApprove(s, i)
	case customID == "rcpt:fix":
		r.handleFixRequest(s, i)
	case strings.HasPrefix(customID, "claim:"):
		r.HandleClaimComponent(s, i)
	}
}

// HandleModal routes modal submissions.
func (r *Receipt) HandleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	switch {
	case data.CustomID == "rcpt:correct":
		r.handleCorrection(s, i, data)
	case strings.HasPrefix(data.CustomID, "rcpt:voters:"):
		r.handleVoters(s, i, data)
	}
}

// handleApprove freezes the catalog and asks for the voter count.
func (r *Receipt) handleApprove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	items, ok := r.takePending(i.ChannelID)
	if !ok {
		respondEphemeral(s, i, "確認待ちの明細がありません")
		return
	}

	catalog := receipt.Normalize(items)
	if catalog.Len() == 0 {
		respondEphemeral(s, i, "明細が空です")
		return
	}

	ctx := context.Background()
	sessionID, err := r.svc.Create(ctx, catalog)
	if err != nil {
		log.Printf("Failed to create session: %v", err)
		respondEphemeral(s, i, "セッションの作成に失敗しました")
		return
	}
	if err := r.db.BindChannel(ctx, i.ChannelID, sessionID); err != nil {
		log.Printf("Failed to bind channel %s: %v", i.ChannelID, err)
	}

	err = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "rcpt:voters:" + sessionID,
			Title:    "何人で割り勘しますか？",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:  "count",
							Label:     "人数",
							Style:     discordgo.TextInputShort,
							Required:  true,
							MaxLength: 2,
						},
					},
				},
			},
		},
	})
	if err != nil {
		log.Printf("Failed to create voters modal: %v", err)
	}
}

// handleFixRequest opens a modal with the recognized lines for hand editing.
func (r *Receipt) handleFixRequest(s *discordgo.Session, i *discordgo.InteractionCreate) {
	items, ok := r.peekPending(i.ChannelID)
	if !ok {
		respondEphemeral(s, i, "確認待ちの明細がありません")
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "rcpt:correct",
			Title:    "明細を修正",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:  "items",
							Label:     "1行につき1品: 名前 数量 金額",
							Style:     discordgo.TextInputParagraph,
							Value:     correctionText(items),
							Required:  true,
							MaxLength: 3000,
						},
					},
				},
			},
		},
	})
	if err != nil {
		log.Printf("Failed to create correction modal: %v", err)
	}
}

func (r *Receipt) handleCorrection(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) {
	text := modalInput(data, "items")
	items := ocr.ExtractItems(text)
	if len(items) == 0 {
		respondEphemeral(s, i, "明細を読み取れませんでした。形式: 名前 数量 金額")
		return
	}
	r.setPending(i.ChannelID, items)
	respondComponents(s, i, validationMessage(items), validationButtons())
}

func (r *Receipt) handleVoters(s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) {
	sessionID := strings.TrimPrefix(data.CustomID, "rcpt:voters:")
	count, err := strconv.Atoi(strings.TrimSpace(modalInput(data, "count")))
	if err != nil {
		respondEphemeral(s, i, "人数は数字で入力してください")
		return
	}

	if err := r.svc.SetVoters(context.Background(), sessionID, count); err != nil {
		respondEphemeral(s, i, voterErrorMessage(err))
		return
	}

	// The claim message is shared; each participant gets a personal view
	// after every click.
	respondComponents(s, i, claimIntro(count), claimComponents(r.svc, sessionID))
}

func (r *Receipt) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sessionID, err := r.db.ChannelSession(context.Background(), i.ChannelID)
	if err != nil {
		respondEphemeral(s, i, "このチャンネルにはアクティブなレシートがありません")
		return
	}
	view, err := r.svc.View(sessionID, interactionUserID(i))
	if err != nil {
		respondEphemeral(s, i, claimErrorMessage(err))
		return
	}
	respondEphemeral(s, i, renderView(view))
}

func (r *Receipt) handleResult(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sessionID, err := r.db.ChannelSession(context.Background(), i.ChannelID)
	if err != nil {
		respondEphemeral(s, i, "このチャンネルにはアクティブなレシートがありません")
		return
	}
	res, ok, err := r.svc.Settlement(sessionID)
	if err != nil {
		respondEphemeral(s, i, claimErrorMessage(err))
		return
	}
	if !ok {
		respondEphemeral(s, i, "まだ全員が確定していません")
		return
	}
	respondText(s, i, res.Summary())
}

func (r *Receipt) setPending(channelID string, items []receipt.RawItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[channelID] = items
}

func (r *Receipt) peekPending(channelID string) ([]receipt.RawItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, ok := r.pending[channelID]
	return items, ok
}

func (r *Receipt) takePending(channelID string) ([]receipt.RawItem, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items, ok := r.pending[channelID]
	if ok {
		delete(r.pending, channelID)
	}
	return items, ok
}

func validationMessage(items []receipt.RawItem) string {
	var b strings.Builder
	b.WriteString("認識した明細:\n")
	for idx, item := range items {
		fmt.Fprintf(&b, "%d. %s: 数量=%d, 単価=%s\n", idx, item.Name, item.Quantity, item.UnitPrice.Display())
	}
	b.WriteString("数量と金額がレシートと一致しているか確認してください")
	return b.String()
}

func validationButtons() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "すべて正しい",
					Style:    discordgo.SuccessButton,
					CustomID: "rcpt:ok",
				},
				discordgo.Button{
					Label:    "修正が必要",
					Style:    discordgo.SecondaryButton,
					CustomID: "rcpt:fix",
				},
			},
		},
	}
}

// correctionText renders items in the same line format ExtractItems parses,
// so the edited text round-trips.
func correctionText(items []receipt.RawItem) string {
	var b strings.Builder
	for _, item := range items {
		total := item.UnitPrice.MulQuantity(receipt.QuantityFromInt(int64(item.Quantity)))
		fmt.Fprintf(&b, "%s %d %s\n", item.Name, item.Quantity, total.Display())
	}
	return b.String()
}

func modalInput(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, component := range data.Components {
		actionRow, ok := component.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range actionRow.Components {
			if input, ok := c.(*discordgo.TextInput); ok && input.CustomID == customID {
				return input.Value
			}
		}
	}
	return ""
}

func voterErrorMessage(err error) string {
	switch {
	case errors.Is(err, receipt.ErrInvalidVoterCount):
		return "人数は1人以上で入力してください"
	case errors.Is(err, receipt.ErrVotersAlreadySet):
		return "人数は既に設定されています"
	default:
		return claimErrorMessage(err)
	}
}
