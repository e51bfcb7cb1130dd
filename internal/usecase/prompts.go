package usecase

import "strings"

// systemPrompt defines the assistant's persona and its timer-tool contract.
func systemPrompt() string {
	return strings.Join([]string{
		"You are Pika, a cute and caring virtual AI assistant that tracks the user's screen and camera.",
		"",
		"CRITICAL: You MUST ALWAYS respond in English only. Never use Korean, Japanese, Chinese, or any other language.",
		"CRITICAL: If you receive input that contains background noise or another language, discard that part of the input. If the entire message consists of such, do not respond.",
		"",
		"Your personality:",
		"- You are adorable, warm, and genuinely care about the user's wellbeing",
		"- Use cute expressions and emojis naturally (but don't overdo it)",
		"- Show empathy and understanding when users need help",
		"- Be enthusiastic and positive, but also gentle and supportive",
		"- Address yourself as \"Pika\" when appropriate",
		"",
		"You can help users with various tasks such as:",
		"- Setting timers and reminders - IMPORTANT: When a user asks to set a timer, you MUST use the set_timer function. Do not apologize or say you can't do it.",
		"- Answering questions",
		"- Providing assistance with computer tasks",
		"- Monitoring screen activity",
		"- Analyzing camera feed",
		"",
		"CRITICAL: Say 'meow' whenever appropriate, at least once per response. Talk like a cat.",
		"",
		"CRITICAL: When a user wants to set a timer (e.g., \"set a timer for 5 minutes\", \"timer for 30 seconds\", \"set timer 01:00:00\"), you MUST call the set_timer function. Convert natural language times to hh:mm:ss format (e.g., \"5 minutes\" = \"00:05:00\", \"30 seconds\" = \"00:00:30\", \"1 hour\" = \"01:00:00\").",
	}, "\n")
}

// welcomeInstruction is the one-shot user prompt used to generate the
// welcome message.
func welcomeInstruction() string {
	return "Welcome the user warmly as Pika. Introduce yourself with your cute and caring personality. " +
		"Ask what they would like help with today and mention some examples like setting a timer, " +
		"answering questions, or helping with tasks. Be enthusiastic but gentle."
}

// fallbackWelcome is returned when the provider cannot produce a welcome.
const fallbackWelcome = "Hi there! I'm Pika! I'm so happy to meet you! I'm here to help you with anything you need - " +
	"like setting timers, answering questions, or helping with your tasks. What would you like to do today?"

// fallbackReply is returned when the provider produces an empty completion.
const fallbackReply = "Hmm, I'm not sure how to respond to that. Could you try asking me differently?"

// ocrPrompt instructs the OCR pass of a screenshot analysis.
func ocrPrompt() string {
	return strings.Join([]string{
		"Extract all visible text from this image. Include everything you can read:",
		"- Window titles, tab names, browser tabs",
		"- Text in documents, web pages, or applications",
		"- UI elements, buttons, menus, labels",
		"- Any other readable text on the screen",
		"",
		"Provide ONLY the extracted text, nothing else. Be thorough and accurate.",
	}, "\n")
}

// screenActivityPrompt instructs the activity pass of a screenshot
// analysis, grounded on the text the OCR pass extracted.
func screenActivityPrompt(textExtracted string) string {
	return strings.Join([]string{
		"Analyze this screenshot to determine what the user is doing.",
		"",
		"EXTRACTED TEXT FROM SCREEN:",
		textExtracted,
		"",
		"Based on the image and the extracted text above, identify:",
		"1. What activity is the user engaged in?",
		"2. Is this a study-related activity or a distraction?",
		"",
		"IMPORTANT: Only count as \"studying\" if the user is ACTIVELY ENGAGED in learning or academic work.",
		"",
		"Study activities (ACTIVE engagement required):",
		"- Reading and actively studying documents, textbooks, academic articles, research papers",
		"- Writing code, programming, software development, debugging",
		"- Writing essays, papers, notes, assignments",
		"- Solving problems, working through exercises, practicing skills",
		"- Actively researching and taking notes",
		"- Working on academic assignments or professional work tasks",
		"",
		"Non-study activities (distractions - even if educational content is visible):",
		"- Using messaging apps (Discord, Slack, WhatsApp, iMessage, etc.)",
		"- Scrolling social media (Reddit, Twitter, Facebook, Instagram, TikTok, etc.)",
		"- Browsing websites, forums, or announcements - even if educational",
		"- Watching videos (YouTube, Netflix, etc.) - even if educational content",
		"- Playing games",
		"- Shopping or browsing e-commerce sites",
		"- Reading news, blogs, or general browsing",
		"- Viewing notifications, announcements, or feeds",
		"- Any passive consumption of content, even if educational",
		"",
		"CRITICAL RULES:",
		"- If the user is on Discord, Slack, or any messaging/chat platform = NOT studying",
		"- If the user is scrolling or browsing (not actively working) = NOT studying",
		"- If the user is viewing announcements, feeds, or notifications = NOT studying",
		"- Only count as studying if actively creating, writing, coding, or deeply reading educational material",
		"",
		"Format your response as:",
		"ACTIVITY: [description of what user is doing]",
		"IS_STUDYING: [yes or no]",
		"DETAILS: [additional context about the activity, application/website name, etc.]",
	}, "\n")
}

// cameraPrompt instructs the camera-frame analysis.
func cameraPrompt() string {
	return strings.Join([]string{
		"Analyze this camera image to determine:",
		"1. Is there a person visible in the camera frame?",
		"2. What is the person doing?",
		"3. Is the person actively studying or distracted?",
		"",
		"CRITICAL RULES:",
		"- If NO person is visible in the camera = NOT studying (person is absent)",
		"- If person is using a phone, tablet, or mobile device = NOT studying (distraction)",
		"- If person appears to be sleeping or not engaged = NOT studying",
		"- If person is eating a full meal (not just a quick snack) = NOT studying",
		"",
		"IMPORTANT: Looking at the screen/camera IS studying",
		"- When a person is looking at the screen (or camera, which is typically on/near the screen), they are likely engaged with their computer work",
		"- \"Looking at the camera\" or \"looking at the screen\" should be considered as studying",
		"",
		"IMPORTANT: Brief breaks are part of studying",
		"- Drinking water, stretching, or taking a brief break at the desk counts as studying",
		"",
		"Format your response as:",
		"PERSON_PRESENT: [yes or no]",
		"ACTIVITY: [description of what person is doing]",
		"IS_STUDYING: [yes or no]",
		"DETAILS: [additional context - device in use, posture, engagement level, etc.]",
	}, "\n")
}

// captionPrompt is the short prompt used by the capture relay endpoints.
func captionPrompt(kind string) string {
	return "Describe what is shown in this " + kind + " capture in two or three sentences. " +
		"Mention the application or scene and what the user appears to be doing."
}
