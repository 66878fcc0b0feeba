package compose

// Help is the reply to /help.
const Help = `The VO Performance Bot delivers SSV operator performance data through a shared channel and direct messages.

- Daily scheduled channel message listing operators that do not meet various performance thresholds
- Daily scheduled direct messages listing recent performance for subscribed operator IDs
- Commands listing threshold alerts or recent performance for given operator IDs

Subscription kinds:
- daily: receive a direct message once per day with recent performance of the subscribed operator IDs
- alerts: get mentioned when any subscribed operator ID appears in the daily threshold alerts message

Commands may be run in the designated chat or by direct message to the bot.
Performance data is taken from a daily snapshot of 24-hour SSV operator performance.
Thresholds displayed are subject to change.

Commands:
/alerts - List operators whose recent performance is below the alert thresholds
/operator <ids...> - Show recent performance for the given operator IDs
/subscribe daily|alerts <ids...> - Subscribe to daily direct messages or alert mentions
/unsubscribe daily|alerts <ids...> - Remove subscriptions
/subscriptions - List your subscriptions
/info - Display bot information
/help - Show this help message`
