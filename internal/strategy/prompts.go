package strategy

const simplifyPrompt = `The user disliked the following %s because it was hard to follow.
Rewrite it so it is easier to understand: shorter sentences, common words, one idea per sentence.
Keep the original meaning. Respond ONLY with the rewritten text.

Original:
%s`

const elaboratePrompt = `The user disliked the following %s because it lacked depth.
Rewrite it with more detail: explain the reasoning and add one concrete example.
Keep it under 200 words. Respond ONLY with the rewritten text.

Original:
%s`

const reframePrompt = `The user disliked the following %s because it did not fit what they needed.
Present the same information from a different angle or in a different tone.
Respond ONLY with the rewritten text.

Original:
%s`
